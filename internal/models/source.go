package models

// Source — источник контента (RSS/Atom-фид).
//
// Список источников задаётся статически в конфигурации; в БД записи
// синхронизируются при каждом цикле обновления, чтобы переименования
// и смена категории применялись без миграций.
type Source struct {
	// ID — стабильный строковый идентификатор из конфигурации.
	ID string
	// Name - отображаемое имя источника.
	Name string
	// URL - адрес фида.
	URL string
	// SiteURL - адрес сайта источника; может быть пустым.
	SiteURL string
	// Category - категория источника.
	Category string
	// Description - краткое описание; может быть пустым.
	Description string
}
