package model

import "time"

// Blob — объект в контейнере blob-хранилища тенанта.
// Blob не знает, какие батчи на него ссылаются: использование вычисляется
// по записям батчей.
type Blob struct {
	// UUID — имя объекта в хранилище
	UUID string `json:"uuid"`
	// Hash — контрольная сумма содержимого
	Hash string `json:"hash"`
	// Size — размер в байтах
	Size int64 `json:"size"`
	// LastModified — время последнего изменения объекта
	LastModified time.Time `json:"last_modified"`
	// ContentType — MIME-тип содержимого
	ContentType string `json:"content_type"`
}
