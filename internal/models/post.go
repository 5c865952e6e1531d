// models содержит доменные сущности агрегатора.
// Эти типы используются слоями бизнес-логики, хранилища и транспорта.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Post — доменная сущность поста, полученного из RSS/Atom-источника.
//
// Особенности:
//   - ID — детерминированный UUID (v5 от пары источник+каноническая ссылка),
//     поэтому повторная загрузка того же поста даёт тот же идентификатор;
//   - Link хранится в канонической форме (без трекинг-параметров и фрагмента)
//     и вместе с SourceID образует ключ дедупликации;
//   - PublishedAt == nil, если источник не сообщил валидную дату публикации:
//     дата не подменяется временем загрузки;
//   - Временные метки — в UTC.
type Post struct {
	// ID — уникальный идентификатор поста.
	ID uuid.UUID
	// SourceID — идентификатор источника (Source.ID).
	SourceID string
	// SourceName — отображаемое имя источника. Производное поле:
	// не хранится в таблице постов, заполняется из источника.
	SourceName string
	// Category — категория, унаследованная от источника. Производное поле:
	// переименование категории источника затрагивает все его посты.
	Category string
	// Title - заголовок поста.
	Title string
	// Link - каноническая ссылка на оригинал.
	Link string
	// Summary - очищенный от HTML и усечённый текст для выдачи.
	Summary string
	// Content - полный очищенный текст без усечения; может быть пустым.
	Content string
	// ImageURL - ссылка на обложку поста, если удалось извлечь.
	ImageURL string
	// Author - автор записи у источника; может быть пустым.
	Author string
	// PublishedAt - время публикации у источника; nil при отсутствии/битой дате.
	PublishedAt *time.Time
	// FetchedAt - время загрузки поста в БД (UTC).
	FetchedAt time.Time
}

// PostID детерминированно выводит идентификатор поста из источника
// и канонической ссылки (ключа дедупликации).
func PostID(sourceID, link string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceID+"\n"+link))
}
