package doctemplar

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config — настройки движка. Нулевые поля заполняются значениями из DefaultConfig.
type Config struct {
	ValueOpen  string `yaml:"value_open"`
	ValueClose string `yaml:"value_close"`
	BlockOpen  string `yaml:"block_open"`
	BlockClose string `yaml:"block_close"`

	// NoDataMarker выводится строгой политикой, когда промежуточное звено пути пусто.
	NoDataMarker string `yaml:"no_data_marker"`
	YesLabel     string `yaml:"yes_label"`
	NoLabel      string `yaml:"no_label"`
	// DateLayout — layout пакета time для дат в подстановках.
	DateLayout string `yaml:"date_layout"`

	// ValuePolicy применяется к {{...}}, ItemPolicy — к $item.prop внутри блоков.
	ValuePolicy string `yaml:"value_policy"`
	ItemPolicy  string `yaml:"item_policy"`

	MaxMacros int `yaml:"max_macros"`
	MaxItems  int `yaml:"max_items"`

	// WorkDir — каталог рабочих копий шаблонов; пусто — os.TempDir().
	WorkDir string `yaml:"work_dir"`
	Quiet   bool   `yaml:"quiet"`

	Logger *log.Logger `yaml:"-"`
}

const (
	PolicyLenient = "lenient"
	PolicyStrict  = "strict"
)

func DefaultConfig() Config {
	return Config{
		ValueOpen:    "{{",
		ValueClose:   "}}",
		BlockOpen:    "${",
		BlockClose:   "}",
		NoDataMarker: "нет данных в базе",
		YesLabel:     "да",
		NoLabel:      "нет",
		DateLayout:   "02.01.2006",
		ValuePolicy:  PolicyLenient,
		ItemPolicy:   PolicyStrict,
		MaxMacros:    10000,
		MaxItems:     5000,
	}
}

// LoadConfig читает YAML-файл поверх значений по умолчанию.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("чтение конфигурации: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("разбор конфигурации %s: %w", path, err)
	}
	return cfg.withDefaults(), nil
}

// ApplyEnv переопределяет поля переменными окружения DOCTEMPLAR_*.
func (c Config) ApplyEnv() Config {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	str("DOCTEMPLAR_NO_DATA_MARKER", &c.NoDataMarker)
	str("DOCTEMPLAR_DATE_LAYOUT", &c.DateLayout)
	str("DOCTEMPLAR_VALUE_POLICY", &c.ValuePolicy)
	str("DOCTEMPLAR_ITEM_POLICY", &c.ItemPolicy)
	str("DOCTEMPLAR_WORK_DIR", &c.WorkDir)
	num("DOCTEMPLAR_MAX_MACROS", &c.MaxMacros)
	num("DOCTEMPLAR_MAX_ITEMS", &c.MaxItems)
	if v := os.Getenv("DOCTEMPLAR_QUIET"); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			c.Quiet = true
		default:
			c.Quiet = false
		}
	}
	return c
}

func (c Config) Validate() error {
	if c.ValueOpen == "" || c.ValueClose == "" || c.BlockOpen == "" || c.BlockClose == "" {
		return errors.New("разделители макросов не могут быть пустыми")
	}
	if c.ValueOpen == c.BlockOpen {
		return errors.New("разделители значений и блоков совпадают")
	}
	for _, p := range []string{c.ValuePolicy, c.ItemPolicy} {
		if p != PolicyLenient && p != PolicyStrict {
			return fmt.Errorf("неизвестная политика разрешения %q", p)
		}
	}
	if c.MaxMacros < 0 || c.MaxItems < 0 {
		return errors.New("ограничения не могут быть отрицательными")
	}
	return nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ValueOpen == "" {
		c.ValueOpen = d.ValueOpen
	}
	if c.ValueClose == "" {
		c.ValueClose = d.ValueClose
	}
	if c.BlockOpen == "" {
		c.BlockOpen = d.BlockOpen
	}
	if c.BlockClose == "" {
		c.BlockClose = d.BlockClose
	}
	if c.NoDataMarker == "" {
		c.NoDataMarker = d.NoDataMarker
	}
	if c.YesLabel == "" {
		c.YesLabel = d.YesLabel
	}
	if c.NoLabel == "" {
		c.NoLabel = d.NoLabel
	}
	if c.DateLayout == "" {
		c.DateLayout = d.DateLayout
	}
	if c.ValuePolicy == "" {
		c.ValuePolicy = d.ValuePolicy
	}
	if c.ItemPolicy == "" {
		c.ItemPolicy = d.ItemPolicy
	}
	if c.MaxMacros == 0 {
		c.MaxMacros = d.MaxMacros
	}
	if c.MaxItems == 0 {
		c.MaxItems = d.MaxItems
	}
	return c
}

func (c Config) logger() *log.Logger {
	if c.Quiet {
		return log.New(io.Discard, "", 0)
	}
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}
