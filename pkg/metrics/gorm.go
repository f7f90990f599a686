package metrics

import (
	"time"

	"gorm.io/gorm"
)

const startKey = "metrics:start"

// GormPlugin 通过 gorm 回调记录每条语句的耗时
type GormPlugin struct {
	Metrics       *Metrics
	SlowThreshold time.Duration
}

func (p *GormPlugin) Name() string { return "travault:metrics" }

func (p *GormPlugin) Initialize(db *gorm.DB) error {
	if p.SlowThreshold <= 0 {
		p.SlowThreshold = 200 * time.Millisecond
	}
	cb := db.Callback()
	hooks := []struct {
		op     string
		before func(name string, fn func(*gorm.DB)) error
		after  func(name string, fn func(*gorm.DB)) error
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, h := range hooks {
		op := h.op
		if err := h.before("metrics:before_"+op, p.before); err != nil {
			return err
		}
		if err := h.after("metrics:after_"+op, func(tx *gorm.DB) { p.after(tx, op) }); err != nil {
			return err
		}
	}
	return nil
}

func (p *GormPlugin) before(tx *gorm.DB) {
	tx.InstanceSet(startKey, time.Now())
}

func (p *GormPlugin) after(tx *gorm.DB, op string) {
	v, ok := tx.InstanceGet(startKey)
	if !ok {
		return
	}
	start, ok := v.(time.Time)
	if !ok {
		return
	}
	table := tx.Statement.Table
	if table == "" {
		table = "unknown"
	}
	d := time.Since(start)
	p.Metrics.RecordDBQuery(op, table, d, d >= p.SlowThreshold)
}
