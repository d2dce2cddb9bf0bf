package db

import (
	"fmt"
	"testing"
	"time"

	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/models"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := Connect("host=localhost user=postgres password=postgres dbname=saas_dashboard port=5432 sslmode=disable TimeZone=UTC")
	if err != nil {
		t.Skipf("skip: db not available: %v", err)
	}
	if err := Migrate(gdb); err != nil {
		t.Skipf("skip: migrate failed: %v", err)
	}
	return gdb
}

// 删除用户后，其会话和日志随外键级联清理。
func TestMigrate_CascadeDeletesUserRows(t *testing.T) {
	gdb := testDB(t)

	user := models.User{
		Name:         "Cascade Case",
		Email:        fmt.Sprintf("cascade-%d@example.com", time.Now().UnixNano()),
		PasswordHash: "x",
		Role:         models.RoleUser,
		Status:       models.StatusActive,
	}
	if err := gdb.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := gdb.Create(&models.Session{UserID: user.ID, LoginTime: time.Now()}).Error; err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := gdb.Create(&models.ActivityLog{UserID: user.ID, Action: "User logged in", Timestamp: time.Now()}).Error; err != nil {
		t.Fatalf("create activity: %v", err)
	}

	if err := gdb.Delete(&models.User{}, user.ID).Error; err != nil {
		t.Fatalf("delete user: %v", err)
	}

	var sessions, activities int64
	if err := gdb.Model(&models.Session{}).Where("user_id = ?", user.ID).Count(&sessions).Error; err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if err := gdb.Model(&models.ActivityLog{}).Where("user_id = ?", user.ID).Count(&activities).Error; err != nil {
		t.Fatalf("count activities: %v", err)
	}
	if sessions != 0 {
		t.Errorf("sessions after user delete = %d, want 0", sessions)
	}
	if activities != 0 {
		t.Errorf("activities after user delete = %d, want 0", activities)
	}
}

func TestSeedAdmin_Idempotent(t *testing.T) {
	gdb := testDB(t)

	email := fmt.Sprintf("seed-%d@example.com", time.Now().UnixNano())
	if err := SeedAdmin(gdb, email, "admin123"); err != nil {
		t.Fatalf("SeedAdmin() first call: %v", err)
	}
	if err := SeedAdmin(gdb, email, "admin123"); err != nil {
		t.Fatalf("SeedAdmin() second call: %v", err)
	}

	var count int64
	if err := gdb.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		t.Fatalf("count admins: %v", err)
	}
	if count != 1 {
		t.Errorf("seeded admin count = %d, want 1", count)
	}
}
