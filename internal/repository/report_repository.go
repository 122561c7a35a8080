package repository

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/waste-report/internal/logging"
)

const (
	defaultRecentReportsLimit = 10
	defaultTaskLimit          = 20
)

// ErrNotCreated is returned when an insert reports success without a row.
var ErrNotCreated = errors.New("record was not created")

// Repository provides the persistence operations for users, reports and
// rewards.
type Repository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewRepository creates a new repository instance.
func NewRepository(db *gorm.DB, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger.Named("repository")}
}

// AutoMigrate ensures the schema is available.
func (r *Repository) AutoMigrate(ctx context.Context) error {
	return r.execute(ctx, "repository.auto_migrate", func(db *gorm.DB) error {
		return db.AutoMigrate(&User{}, &Report{}, &Reward{})
	})
}

// GetUserByEmail returns the user with the given email, or nil when none
// exists.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := r.execute(ctx, "repository.get_user_by_email", func(db *gorm.DB) error {
		return db.Where("email = ?", email).Take(&user).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts a new user.
func (r *Repository) CreateUser(ctx context.Context, email, name string) (*User, error) {
	user := &User{Email: email, Name: name}
	if err := r.execute(ctx, "repository.create_user", func(db *gorm.DB) error {
		return db.Create(user).Error
	}); err != nil {
		return nil, err
	}
	return user, nil
}

// CreateReport inserts a pending report. Empty imageURL and verification
// metadata are stored as NULL.
func (r *Repository) CreateReport(ctx context.Context, userID uint, location, wasteType, amount, imageURL, verification string) (*Report, error) {
	report := &Report{
		UserID:             userID,
		Location:           location,
		WasteType:          wasteType,
		Amount:             amount,
		ImageURL:           optional(imageURL),
		VerificationResult: optional(verification),
		Status:             StatusPending,
	}
	if err := r.execute(ctx, "repository.create_report", func(db *gorm.DB) error {
		res := db.Create(report)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 || report.ID == 0 {
			return ErrNotCreated
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return report, nil
}

// GetRecentReports returns the newest reports first. A non-positive limit
// uses the default of 10.
func (r *Repository) GetRecentReports(ctx context.Context, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = defaultRecentReportsLimit
	}
	var reports []Report
	if err := r.execute(ctx, "repository.get_recent_reports", func(db *gorm.DB) error {
		return db.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&reports).Error
	}); err != nil {
		return nil, err
	}
	return reports, nil
}

// GetWasteCollectionTasks returns reports as collection tasks, newest first.
// A non-positive limit uses the default of 20.
func (r *Repository) GetWasteCollectionTasks(ctx context.Context, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = defaultTaskLimit
	}
	var tasks []Report
	if err := r.execute(ctx, "repository.get_waste_collection_tasks", func(db *gorm.DB) error {
		return db.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&tasks).Error
	}); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetAllRewards returns every reward row, highest points first.
func (r *Repository) GetAllRewards(ctx context.Context) ([]Reward, error) {
	var rewards []Reward
	if err := r.execute(ctx, "repository.get_all_rewards", func(db *gorm.DB) error {
		return db.Order("points DESC").Find(&rewards).Error
	}); err != nil {
		return nil, err
	}
	return rewards, nil
}

// GetAvailableRewards lists the redeemable rewards for a user, preceded by an
// entry carrying the user's point balance.
func (r *Repository) GetAvailableRewards(ctx context.Context, userID uint) ([]AvailableReward, error) {
	var total int64
	var rewards []Reward
	if err := r.execute(ctx, "repository.get_available_rewards", func(db *gorm.DB) error {
		if err := db.Model(&Reward{}).
			Where("user_id = ?", userID).
			Select("COALESCE(SUM(points), 0)").
			Scan(&total).Error; err != nil {
			return err
		}
		return db.Where("is_available = ?", true).Order("points ASC").Find(&rewards).Error
	}); err != nil {
		return nil, err
	}

	out := make([]AvailableReward, 0, len(rewards)+1)
	out = append(out, AvailableReward{
		Name:           "Your Points",
		Cost:           int(total),
		Description:    "Redeem your earned points",
		CollectionInfo: "Points earned from reporting and collecting waste",
	})
	for _, rw := range rewards {
		out = append(out, AvailableReward{
			ID:             rw.ID,
			Name:           rw.Name,
			Cost:           rw.Points,
			Description:    rw.Description,
			CollectionInfo: rw.CollectionInfo,
		})
	}
	return out, nil
}

// execute runs fn once against a context-bound handle and wraps any error
// with the operation name.
func (r *Repository) execute(ctx context.Context, operation string, fn func(db *gorm.DB) error) error {
	err := fn(r.db.WithContext(ctx))
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		r.logger.Error("database operation failed", zap.String("operation", operation), zap.Error(err))
	}
	return logging.NewOperationError(operation, "", err)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
