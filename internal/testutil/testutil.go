package testutil

import (
	"testing"

	"remit_mall/internal/model"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 建一个建好全部表的内存库。
// ":memory:" 每个连接各自是一个独立库，把连接池锁到 1 保证所有会话同库，
// 顺带让并发用例里的数据库访问有确定的串行化点。
func DB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, model.AutoMigrate(db))
	return db
}

// Logger 测试用的静默日志。
func Logger() *zap.Logger { return zap.NewNop() }
