package repository

import (
	"context"
	_ "embed" // Схема БД встраивается в бинарник
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var schemaDDL string

// ApplySchema создает таблицы и индексы, если их еще нет. Операция идемпотентна.
func ApplySchema(ctx context.Context, db *sqlx.DB) error {
	log.Println("Применение схемы БД...")
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ошибка применения схемы БД: %w", err)
	}
	log.Println("Схема БД актуальна.")
	return nil
}
