package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Catalog describes every product line the service sells. Slot sets are
// read once at startup; prices and timings are read on every request and
// follow hot reloads.
type Catalog struct {
	ProductLines []ProductLineConfig `mapstructure:"productLines"`
}

type ProductLineConfig struct {
	Name              string            `mapstructure:"name"`
	Slots             []string          `mapstructure:"slots"`
	PrimarySlot       string            `mapstructure:"primarySlot"`
	RedirectTypes     map[string]string `mapstructure:"redirectTypes"`
	CouponServiceType string            `mapstructure:"couponServiceType"`
	OrderName         string            `mapstructure:"orderName"`
	Price             int64             `mapstructure:"price"`
	OriginalPrice     int64             `mapstructure:"originalPrice"`
	DiscountPrice     int64             `mapstructure:"discountPrice"`
	MinimumCharge     int64             `mapstructure:"minimumCharge"`
	TeaserDuration    time.Duration     `mapstructure:"teaserDuration"`
	RetentionDelay    time.Duration     `mapstructure:"retentionDelay"`
}

func (c Catalog) Line(name string) (ProductLineConfig, bool) {
	name = strings.TrimSpace(name)
	for _, line := range c.ProductLines {
		if line.Name == name {
			return line, true
		}
	}
	return ProductLineConfig{}, false
}

// ResolveRedirectType maps the type discriminator carried on gateway
// redirect URLs back to a product line and slot.
func (c Catalog) ResolveRedirectType(kind string) (line string, slot string, ok bool) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	for _, pl := range c.ProductLines {
		if s, found := pl.RedirectTypes[kind]; found {
			return pl.Name, s, true
		}
	}
	return "", "", false
}

// RedirectType returns the discriminator used for a slot on success and
// fail URLs.
func (l ProductLineConfig) RedirectType(slot string) string {
	for kind, s := range l.RedirectTypes {
		if s == slot {
			return kind
		}
	}
	return slot
}

func DefaultCatalog() Catalog {
	faceSlots := []string{"base", "wealth", "love", "marriage", "career", "health"}
	faceTypes := make(map[string]string, len(faceSlots))
	for _, s := range faceSlots {
		faceTypes[s] = s
	}
	return Catalog{
		ProductLines: []ProductLineConfig{
			{
				Name:              "face",
				Slots:             faceSlots,
				PrimarySlot:       "base",
				RedirectTypes:     faceTypes,
				CouponServiceType: "face",
				OrderName:         "관상 상세 분석 서비스",
				Price:             9900,
				OriginalPrice:     29900,
				DiscountPrice:     7900,
				MinimumCharge:     100,
				TeaserDuration:    10 * time.Second,
				RetentionDelay:    time.Second,
			},
			{
				Name:              "couple",
				Slots:             []string{"couple"},
				PrimarySlot:       "couple",
				RedirectTypes:     map[string]string{"couple": "couple"},
				CouponServiceType: "couple",
				OrderName:         "AI 커플 궁합 관상 보고서",
				Price:             9900,
				OriginalPrice:     21140,
				DiscountPrice:     7900,
				MinimumCharge:     100,
				TeaserDuration:    10 * time.Second,
				RetentionDelay:    time.Second,
			},
			{
				Name:              "saju_love",
				Slots:             []string{"love"},
				PrimarySlot:       "love",
				RedirectTypes:     map[string]string{"saju": "love"},
				CouponServiceType: "saju_love",
				OrderName:         "AI 연애 사주 심층 분석",
				Price:             14900,
				OriginalPrice:     32900,
				DiscountPrice:     9900,
				MinimumCharge:     100,
				TeaserDuration:    10 * time.Second,
				RetentionDelay:    time.Second,
			},
			{
				Name:              "new_year",
				Slots:             []string{"fortune"},
				PrimarySlot:       "fortune",
				RedirectTypes:     map[string]string{"new_year": "fortune"},
				CouponServiceType: "new_year",
				OrderName:         "AI 2026 신년 운세 심층 분석",
				Price:             26900,
				OriginalPrice:     49800,
				MinimumCharge:     100,
				TeaserDuration:    10 * time.Second,
			},
		},
	}
}

type CatalogHolder struct {
	current atomic.Value // holds Catalog
}

// NewStaticCatalogHolder pins a catalog without touching the filesystem.
func NewStaticCatalogHolder(c Catalog) (*CatalogHolder, error) {
	if err := ValidateCatalog(c); err != nil {
		return nil, err
	}
	holder := &CatalogHolder{}
	holder.current.Store(c)
	return holder, nil
}

func NewCatalogHolder(cfg Config, log *zap.Logger) (*CatalogHolder, error) {
	log = log.Named("config.catalog")
	v := viper.New()

	if cfg.CatalogPath != "" {
		v.SetConfigFile(cfg.CatalogPath)
	} else {
		v.SetConfigName("catalog")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/facesaju")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FACESAJU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		fromFile = false
	}

	catalog := DefaultCatalog()
	if fromFile {
		var loaded Catalog
		if err := v.UnmarshalKey("catalog", &loaded); err != nil {
			return nil, fmt.Errorf("decode catalog: %w", err)
		}
		catalog = loaded
	}
	if err := ValidateCatalog(catalog); err != nil {
		return nil, err
	}

	holder := &CatalogHolder{}
	holder.current.Store(catalog)

	if !fromFile {
		log.Info("catalog file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Catalog
		if err := v.UnmarshalKey("catalog", &updated); err != nil {
			log.Warn("catalog reload failed", zap.Error(err))
			return
		}
		if err := ValidateCatalog(updated); err != nil {
			log.Warn("invalid catalog ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("catalog reloaded", zap.String("file", filepath.Base(e.Name)))
	})

	return holder, nil
}

func (h *CatalogHolder) Get() Catalog {
	return h.current.Load().(Catalog)
}

func ValidateCatalog(c Catalog) error {
	if len(c.ProductLines) == 0 {
		return errors.New("catalog.productLines cannot be empty")
	}
	names := map[string]struct{}{}
	kinds := map[string]string{}
	for _, line := range c.ProductLines {
		name := strings.TrimSpace(line.Name)
		if name == "" {
			return errors.New("catalog product line name cannot be empty")
		}
		if _, dup := names[name]; dup {
			return fmt.Errorf("catalog product line %q declared twice", name)
		}
		names[name] = struct{}{}
		if len(line.Slots) == 0 {
			return fmt.Errorf("catalog product line %q has no slots", name)
		}
		slots := map[string]struct{}{}
		for _, s := range line.Slots {
			slots[s] = struct{}{}
		}
		if _, ok := slots[line.PrimarySlot]; !ok {
			return fmt.Errorf("catalog product line %q primary slot %q is not a slot", name, line.PrimarySlot)
		}
		for kind, s := range line.RedirectTypes {
			if _, ok := slots[s]; !ok {
				return fmt.Errorf("catalog product line %q redirect type %q targets unknown slot %q", name, kind, s)
			}
			if owner, taken := kinds[kind]; taken {
				return fmt.Errorf("catalog redirect type %q used by %q and %q", kind, owner, name)
			}
			kinds[kind] = name
		}
		if line.Price <= 0 {
			return fmt.Errorf("catalog product line %q price must be positive", name)
		}
		if line.DiscountPrice < 0 || (line.DiscountPrice != 0 && line.DiscountPrice >= line.Price) {
			return fmt.Errorf("catalog product line %q discount price must be below price", name)
		}
	}
	return nil
}
