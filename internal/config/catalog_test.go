package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	require.NoError(t, ValidateCatalog(DefaultCatalog()))
}

func TestResolveRedirectType(t *testing.T) {
	c := DefaultCatalog()

	line, slot, ok := c.ResolveRedirectType("saju")
	require.True(t, ok)
	assert.Equal(t, "saju_love", line)
	assert.Equal(t, "love", slot)

	line, slot, ok = c.ResolveRedirectType("Wealth")
	require.True(t, ok)
	assert.Equal(t, "face", line)
	assert.Equal(t, "wealth", slot)

	_, _, ok = c.ResolveRedirectType("tarot")
	assert.False(t, ok)

	face, _ := c.Line("face")
	assert.Equal(t, "career", face.RedirectType("career"))
	love, _ := c.Line("saju_love")
	assert.Equal(t, "saju", love.RedirectType("love"))
}

func TestValidateCatalogRejectsBrokenLines(t *testing.T) {
	cases := map[string]Catalog{
		"empty": {},
		"primary outside slots": {ProductLines: []ProductLineConfig{
			{Name: "face", Slots: []string{"base"}, PrimarySlot: "wealth", Price: 100},
		}},
		"duplicate line": {ProductLines: []ProductLineConfig{
			{Name: "face", Slots: []string{"base"}, PrimarySlot: "base", Price: 100},
			{Name: "face", Slots: []string{"base"}, PrimarySlot: "base", Price: 100},
		}},
		"redirect to unknown slot": {ProductLines: []ProductLineConfig{
			{Name: "face", Slots: []string{"base"}, PrimarySlot: "base", Price: 100, RedirectTypes: map[string]string{"x": "y"}},
		}},
		"discount above price": {ProductLines: []ProductLineConfig{
			{Name: "face", Slots: []string{"base"}, PrimarySlot: "base", Price: 100, DiscountPrice: 200},
		}},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, ValidateCatalog(c))
		})
	}
}

func TestNewCatalogHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yml")
	body := `catalog:
  productLines:
    - name: face
      slots: [base, wealth]
      primarySlot: base
      redirectTypes:
        base: base
        wealth: wealth
      couponServiceType: face
      orderName: face report
      price: 5000
      discountPrice: 3000
      teaserDuration: 5s
      retentionDelay: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	holder, err := NewCatalogHolder(Config{CatalogPath: path}, zap.NewNop())
	require.NoError(t, err)

	line, ok := holder.Get().Line("face")
	require.True(t, ok)
	assert.Equal(t, []string{"base", "wealth"}, line.Slots)
	assert.Equal(t, int64(5000), line.Price)
	assert.Equal(t, 5*time.Second, line.TeaserDuration)
	assert.Equal(t, 2*time.Second, line.RetentionDelay)
}
