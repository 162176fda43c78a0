// Package sales связывает generic репозиторий с сущностью Sales.
package sales

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/merliontechs/sales/framework/core"
)

// EntityName имя сущности в маршрутах, событиях и метриках
const EntityName = "sales"

// State состояние продажи
type State string

const (
	StateInCharge  State = "IN_CHARGE"
	StateShipped   State = "SHIPPED"
	StateDelivered State = "DELIVERED"
)

// Valid проверяет, что состояние известно; пустое состояние допустимо
func (s State) Valid() bool {
	switch s {
	case "", StateInCharge, StateShipped, StateDelivered:
		return true
	}
	return false
}

// Sales продажа
type Sales struct {
	ID          int64  `json:"id" bson:"_id"`
	Description string `json:"description" bson:"description"`
	State       State  `json:"state,omitempty" bson:"state"`
	Date        Date   `json:"date" bson:"date"`
}

// Validate проверяет поля сущности перед сохранением
func Validate(s Sales) error {
	if !s.State.Valid() {
		return core.InvalidArgument("unknown sales state %q", s.State)
	}
	return nil
}

// Prepare подставляет StateInCharge вместо пустого состояния и проверяет сущность.
// Вызывается репозиторием перед каждой записью в store.
func Prepare(s Sales) (Sales, error) {
	if s.State == "" {
		s.State = StateInCharge
	}
	return s, Validate(s)
}

const dateLayout = "2006-01-02"

// Date календарная дата без времени, в JSON и MongoDB хранится как "YYYY-MM-DD"
type Date struct {
	time.Time
}

// NewDate создает дату в UTC
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf отбрасывает время суток
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate разбирает дату вида "2006-01-02"; пустая строка дает нулевую дату
func ParseDate(s string) (Date, error) {
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t}, nil
}

// String возвращает "YYYY-MM-DD" или пустую строку для нулевой даты
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// MarshalJSON кодирует нулевую дату как null
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON принимает "YYYY-MM-DD", полную метку RFC 3339 или null
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		*d = DateOf(t)
		return nil
	}

	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalBSONValue кодирует дату строкой
func (d Date) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if d.IsZero() {
		return bson.TypeNull, nil, nil
	}
	return bson.MarshalValue(d.String())
}

// UnmarshalBSONValue читает строку или null
func (d *Date) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	switch t {
	case bson.TypeNull:
		*d = Date{}
		return nil
	case bson.TypeDateTime:
		*d = DateOf(raw.Time())
		return nil
	}

	s, ok := raw.StringValueOK()
	if !ok {
		return fmt.Errorf("cannot decode %s into sales date", t)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
