package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, PromotionModeAuto, cfg.Waitlist.PromotionMode)
	assert.Equal(t, 2*time.Hour, cfg.Waitlist.NotifyWindow)
	assert.Equal(t, 300*time.Millisecond, cfg.ListCache.TTL)
	assert.Equal(t, 5*time.Second, cfg.Database.TxTimeout)
	assert.Equal(t, "class.waitlist", cfg.RabbitMQ.Queue)
	assert.Equal(t, 3*time.Second, cfg.RabbitMQ.DialTimeout)
}

func TestFromViperPromotionModeFallsBackToAuto(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("WAITLIST_PROMOTION_MODE", "bogus")
	assert.Equal(t, PromotionModeAuto, fromViper(v).Waitlist.PromotionMode)

	v.Set("WAITLIST_PROMOTION_MODE", " Notify ")
	assert.Equal(t, PromotionModeNotify, fromViper(v).Waitlist.PromotionMode)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("not-a-duration", time.Minute))
	assert.Equal(t, 90*time.Second, parseDuration("90s", time.Minute))
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a , ,b "))
}

func TestGenerationLocation(t *testing.T) {
	assert.Equal(t, time.UTC, GenerationConfig{}.Location())
	assert.Equal(t, time.UTC, GenerationConfig{Timezone: "Not/AZone"}.Location())
	assert.Equal(t, "UTC", GenerationConfig{Timezone: "UTC"}.Location().String())
}
