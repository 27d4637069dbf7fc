package migration

import (
	auditdomain "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/audit/domain"
	creditdomain "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/credit/domain"
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/config"
	orgdomain "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/organization/domain"
	usagedomain "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/usage/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(
				&orgdomain.Organization{},
				&orgdomain.User{},
				&creditdomain.LedgerEntry{},
				&creditdomain.MonthlyCap{},
				&usagedomain.UsageEvent{},
				&auditdomain.AuditLog{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
