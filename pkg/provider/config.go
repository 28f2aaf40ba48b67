package provider

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/arzzra/call_bridge/pkg/bridge"
)

// HandleType определяет тип идентификатора абонента (handle),
// который отображается системным UI звонков.
type HandleType string

const (
	// HandleGeneric - произвольный идентификатор (имя пользователя, логин)
	HandleGeneric HandleType = "generic"

	// HandleNumber - телефонный номер
	HandleNumber HandleType = "number"

	// HandleEmail - адрес электронной почты
	HandleEmail HandleType = "email"
)

// Valid проверяет, что значение входит в допустимый набор.
func (h HandleType) Valid() bool {
	switch h {
	case HandleGeneric, HandleNumber, HandleEmail:
		return true
	}
	return false
}

// Config содержит конфигурацию провайдера звонков.
//
// Схема повторяет options нативного модуля звонков: имя приложения,
// ограничения на количество одновременных вызовов и оформление
// системного UI. Загружается из YAML файла или собирается в коде.
type Config struct {
	// AppName локализованное имя приложения, отображаемое системным UI звонков
	AppName string `yaml:"appName" json:"appName"`

	// MaximumCallGroups максимальное количество групп вызовов
	// По умолчанию: 1
	MaximumCallGroups int `yaml:"maximumCallGroups" json:"maximumCallGroups"`

	// MaximumCallsPerCallGroup максимальное количество вызовов в группе
	// По умолчанию: 1
	MaximumCallsPerCallGroup int `yaml:"maximumCallsPerCallGroup" json:"maximumCallsPerCallGroup"`

	// HandleType тип идентификатора абонента: generic, number или email
	// По умолчанию: generic
	HandleType HandleType `yaml:"handleType" json:"handleType"`

	// SupportsVideo поддерживает ли приложение видеозвонки
	SupportsVideo bool `yaml:"supportsVideo" json:"supportsVideo"`

	// IncludesCallsInRecents добавлять ли звонки в системный журнал вызовов
	IncludesCallsInRecents bool `yaml:"includesCallsInRecents" json:"includesCallsInRecents"`

	// RingtoneSound имя файла мелодии входящего вызова, пустое значение
	// означает системную мелодию по умолчанию
	RingtoneSound string `yaml:"ringtoneSound,omitempty" json:"ringtoneSound,omitempty"`

	// ImageName имя иконки приложения для системного UI звонков
	ImageName string `yaml:"imageName,omitempty" json:"imageName,omitempty"`
}

// DefaultConfig возвращает конфигурацию с умолчаниями:
// одна группа вызовов, один вызов в группе, generic идентификаторы.
func DefaultConfig(appName string) *Config {
	return &Config{
		AppName:                  appName,
		MaximumCallGroups:        1,
		MaximumCallsPerCallGroup: 1,
		HandleType:               HandleGeneric,
	}
}

// LoadConfig читает конфигурацию провайдера из YAML файла.
// Отсутствующие поля заполняются умолчаниями, затем конфигурация
// проходит валидацию.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg := DefaultConfig("")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("yaml unmarshal %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет конфигурацию на согласованность.
// Возвращает первую найденную ошибку.
func (c *Config) Validate() error {
	if c.AppName == "" {
		return bridge.ErrInvalidConfig("appName", c.AppName, "имя приложения обязательно")
	}
	if c.MaximumCallGroups < 1 {
		return bridge.ErrInvalidConfig("maximumCallGroups", c.MaximumCallGroups, "должно быть не меньше 1")
	}
	if c.MaximumCallsPerCallGroup < 1 {
		return bridge.ErrInvalidConfig("maximumCallsPerCallGroup", c.MaximumCallsPerCallGroup, "должно быть не меньше 1")
	}
	if !c.HandleType.Valid() {
		return bridge.ErrInvalidConfig("handleType", string(c.HandleType), "допустимы generic, number, email")
	}
	return nil
}

// MaxActiveCalls возвращает предел одновременных вызовов,
// произведение количества групп на размер группы.
func (c *Config) MaxActiveCalls() int {
	return c.MaximumCallGroups * c.MaximumCallsPerCallGroup
}
