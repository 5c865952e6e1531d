// feed реализует толерантный разбор RSS/Atom-документов в доменные посты.
//
// Формат документа определяется один раз по содержимому; повреждённые или
// неполные записи пропускаются по одной, не отбрасывая документ целиком.
// Ссылки приводятся к канонической форме и служат ключом дедупликации,
// HTML в текстах вычищается, битые даты публикации остаются пустыми.
package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lance631/InfoMatrix/internal/models"
	"github.com/lance631/InfoMatrix/internal/pkg/log"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	gofeedatom "github.com/mmcdole/gofeed/atom"
	gofeedrss "github.com/mmcdole/gofeed/rss"
)

// Ошибки разбора документа.
// Обе относятся к источнику целиком и фиксируются как итог источника
// в цикле обновления, не прерывая обработку остальных источников.
var (
	// ErrUnsupportedFormat — формат документа не распознан как RSS или Atom
	// (в том числе JSON Feed и HTML-страницы вместо фида).
	ErrUnsupportedFormat = errors.New("unsupported feed format")
	// ErrParse — документ заявленного формата не удалось разобрать.
	ErrParse = errors.New("malformed feed document")
)

// Format — формат документа фида. Определяется один раз на документ,
// дальнейший разбор не делает повторных проверок формата.
type Format int

const (
	FormatUnknown Format = iota
	FormatRSS
	FormatAtom
)

func (f Format) String() string {
	switch f {
	case FormatRSS:
		return "rss"
	case FormatAtom:
		return "atom"
	default:
		return "unknown"
	}
}

// DetectFormat определяет формат документа по его содержимому,
// не полагаясь на Content-Type ответа и расширение ссылки.
func DetectFormat(body []byte) Format {
	switch gofeed.DetectFeedType(bytes.NewReader(body)) {
	case gofeed.FeedTypeRSS:
		return FormatRSS
	case gofeed.FeedTypeAtom:
		return FormatAtom
	default:
		return FormatUnknown
	}
}

// summaryLimit — максимальная длина Summary в рунах (включая многоточие).
const summaryLimit = 500

// Parser нормализует документы фидов в доменные посты.
// Экземпляр безопасен для повторного использования.
type Parser struct {
	policy   *bluemonday.Policy
	maxItems int
}

// NewParser создаёт парсер. maxItems ограничивает число записей,
// обрабатываемых из одного документа (<= 0 — без ограничения).
func NewParser(maxItems int) *Parser {
	return &Parser{
		policy:   bluemonday.StrictPolicy(),
		maxItems: maxItems,
	}
}

// Parse разбирает документ фида в посты источника.
//
// Контракт:
//   - формат определяется по содержимому: неизвестный — ErrUnsupportedFormat,
//     нечитаемый документ известного формата — ErrParse;
//   - запись без заголовка или без идентичности (ссылки/GUID) пропускается
//     с debug-логом, остальные записи документа обрабатываются дальше;
//   - повторы одной ссылки внутри документа схлопываются (первая побеждает);
//   - даты публикации переводятся в UTC; невалидная дата остаётся nil
//     и никогда не подменяется временем загрузки;
//   - документ без записей — успех с пустым результатом.
func (p *Parser) Parse(ctx context.Context, source models.Source, body []byte, now time.Time) ([]models.Post, error) {
	const op = "feed.Parse"

	format := DetectFormat(body)
	if format == FormatUnknown {
		return nil, fmt.Errorf("%s: %s: %w", op, source.ID, ErrUnsupportedFormat)
	}

	var (
		parsed *gofeed.Feed
		err    error
	)
	switch format {
	case FormatRSS:
		parsed, err = parseRSS(body)
	case FormatAtom:
		parsed, err = parseAtom(body)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w: %v", op, source.ID, ErrParse, err)
	}

	items := parsed.Items
	if p.maxItems > 0 && len(items) > p.maxItems {
		items = items[:p.maxItems]
	}

	lg := log.From(ctx)

	posts := make([]models.Post, 0, len(items))
	seen := make(map[string]struct{}, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		title := strings.TrimSpace(item.Title)
		link := dedupKey(item.Link, item.GUID)
		if title == "" || link == "" {
			lg.Debug("feed_entry_skipped",
				slog.String("source", source.ID),
				slog.String("format", format.String()),
				slog.String("link", item.Link),
				slog.String("guid", item.GUID),
			)
			continue
		}

		// Повтор ссылки внутри документа: первая запись побеждает.
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}

		description := p.cleanText(item.Description)
		content := p.cleanText(item.Content)
		if content == "" {
			content = description
		}
		summary := description
		if summary == "" {
			summary = content
		}

		posts = append(posts, models.Post{
			ID:          models.PostID(source.ID, link),
			SourceID:    source.ID,
			SourceName:  source.Name,
			Category:    source.Category,
			Title:       title,
			Link:        link,
			Summary:     truncate(summary, summaryLimit),
			Content:     content,
			ImageURL:    pickImageURL(item),
			Author:      authorName(item),
			PublishedAt: publishedAt(item),
			FetchedAt:   now.UTC(),
		})
	}

	return posts, nil
}

// Чистые парсеры форматов: документ -> универсальное представление gofeed.
// Формат уже известен, поэтому универсальный парсер с повторным
// определением типа не используется.

func parseRSS(body []byte) (*gofeed.Feed, error) {
	parsed, err := (&gofeedrss.Parser{}).Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return (&gofeed.DefaultRSSTranslator{}).Translate(parsed)
}

func parseAtom(body []byte) (*gofeed.Feed, error) {
	parsed, err := (&gofeedatom.Parser{}).Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return (&gofeed.DefaultAtomTranslator{}).Translate(parsed)
}

// dedupKey вычисляет идентичность записи: каноническая ссылка, затем GUID.
// GUID в форме URL канонизируется так же, как ссылка; прочие GUID берутся
// как есть. Пустой результат — запись без идентичности.
func dedupKey(link, guid string) string {
	if u := canonicalLink(link); u != "" {
		return u
	}
	if u := canonicalLink(guid); u != "" {
		return u
	}
	return strings.TrimSpace(guid)
}

// canonicalLink приводит абсолютную http(s)-ссылку к канонической форме:
// хост в нижнем регистре, без фрагмента и без трекинг-параметров
// (utm_*, *clid, mc_*, igshid). Для остальных значений возвращает "".
func canonicalLink(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		lk := strings.ToLower(key)
		if strings.HasPrefix(lk, "utm_") || strings.HasSuffix(lk, "clid") ||
			strings.HasPrefix(lk, "mc_") || lk == "igshid" {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// publishedAt возвращает дату публикации в UTC.
// Для Atom записи с одним лишь <updated> берётся updated; отсутствующая
// или нечитаемая дата остаётся nil.
func publishedAt(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		return &t
	}
	if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		return &t
	}
	return nil
}

// cleanText убирает HTML-разметку, декодирует сущности и схлопывает
// пробельные последовательности в один пробел.
func (p *Parser) cleanText(s string) string {
	if s == "" {
		return ""
	}
	s = p.policy.Sanitize(s)
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// truncate усекает строку до limit рун, добавляя многоточие.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

// authorName извлекает имя автора записи; вместо отсутствующего имени
// используется email.
func authorName(item *gofeed.Item) string {
	persons := item.Authors
	if len(persons) == 0 && item.Author != nil {
		persons = []*gofeed.Person{item.Author}
	}
	for _, person := range persons {
		if person == nil {
			continue
		}
		if name := strings.TrimSpace(person.Name); name != "" {
			return name
		}
		if email := strings.TrimSpace(person.Email); email != "" {
			return email
		}
	}
	return ""
}

var imgTagRe = regexp.MustCompile(`(?is)<img[^>]+src=["']([^"']+)["']`)

// pickImageURL выбирает обложку поста.
// Порядок: enclosure с типом image/* (при нескольких — с наибольшим
// заявленным размером), затем media:content и media:thumbnail,
// затем картинка записи, затем первый <img> из content/description.
func pickImageURL(item *gofeed.Item) string {
	var (
		bestURL string
		bestLen int64
	)
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if t := strings.ToLower(enc.Type); t != "" && !strings.HasPrefix(t, "image/") {
			continue
		}
		length, _ := strconv.ParseInt(enc.Length, 10, 64)
		if bestURL == "" || length > bestLen {
			bestURL, bestLen = enc.URL, length
		}
	}
	if bestURL != "" {
		return bestURL
	}

	if media, ok := item.Extensions["media"]; ok {
		for _, e := range media["content"] {
			u := e.Attrs["url"]
			if u == "" {
				continue
			}
			if t := strings.ToLower(e.Attrs["type"]); t == "" || strings.HasPrefix(t, "image/") {
				return u
			}
		}
		for _, e := range media["thumbnail"] {
			if u := e.Attrs["url"]; u != "" {
				return u
			}
		}
	}

	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}

	if u := firstImgSrc(item.Content); u != "" {
		return u
	}
	return firstImgSrc(item.Description)
}

// firstImgSrc достаёт адрес первой картинки из HTML-фрагмента.
// Принимаются только ссылки с явным графическим расширением
// (после отбрасывания query/fragment), чтобы не тянуть трекинг-пиксели
// и счётчики.
func firstImgSrc(htmlFragment string) string {
	m := imgTagRe.FindStringSubmatch(htmlFragment)
	if len(m) < 2 {
		return ""
	}

	src := strings.TrimSpace(html.UnescapeString(m[1]))
	probe := src
	if i := strings.IndexAny(probe, "?#"); i >= 0 {
		probe = probe[:i]
	}
	probe = strings.ToLower(probe)
	for _, ext := range [...]string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg"} {
		if strings.HasSuffix(probe, ext) {
			return src
		}
	}
	return ""
}
