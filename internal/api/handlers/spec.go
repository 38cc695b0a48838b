// spec.go — загрузка и валидация OpenAPI-контракта Model Module.
// Контракт встраивается в бинарник и отдаётся на /api/v1/openapi.json.
package handlers

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var specYAML []byte

// LoadSpec разбирает встроенный OpenAPI-контракт, валидирует его
// и возвращает JSON-представление для отдачи клиентам.
// Невалидный контракт — ошибка сборки, обнаруживаемая на старте сервиса.
func LoadSpec() ([]byte, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(specYAML)
	if err != nil {
		return nil, fmt.Errorf("разбор OpenAPI-контракта: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("валидация OpenAPI-контракта: %w", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("сериализация OpenAPI-контракта: %w", err)
	}
	return data, nil
}
