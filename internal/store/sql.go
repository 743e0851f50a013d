package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	config "example.com/tweetgraph/internal/init"
	"example.com/tweetgraph/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// SQLConfig holds relational database configuration.
type SQLConfig struct {
	Driver          string // postgres, mysql, sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string // postgres only
	FilePath        string // sqlite only
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

func SQLConfigFrom(cfg *config.Config) SQLConfig {
	return SQLConfig{
		Driver:          cfg.SQLDriver,
		Host:            cfg.SQLHost,
		Port:            cfg.SQLPort,
		User:            cfg.SQLUser,
		Password:        cfg.SQLPassword,
		DBName:          cfg.SQLDBName,
		SSLMode:         cfg.SQLSSLMode,
		FilePath:        cfg.SQLFilePath,
		MaxIdleConns:    cfg.SQLMaxIdleConns,
		MaxOpenConns:    cfg.SQLMaxOpenConns,
		ConnMaxLifetime: cfg.SQLConnMaxLifetime,
	}
}

// --- Table rows ---

type userRow struct {
	ID           string    `gorm:"column:id;type:varchar(36);primaryKey"`
	Username     string    `gorm:"column:username;type:varchar(150);not null;uniqueIndex"`
	Email        string    `gorm:"column:email;type:varchar(254);not null"`
	PasswordHash string    `gorm:"column:password_hash;type:varchar(255);not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
}

func (userRow) TableName() string { return "users" }

// followRow is keyed by the ordered pair, which is what makes a follow unique.
type followRow struct {
	FollowerID  string    `gorm:"column:follower_id;type:varchar(36);primaryKey"`
	FollowingID string    `gorm:"column:following_id;type:varchar(36);primaryKey;index"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;index"`
}

func (followRow) TableName() string { return "follows" }

type tweetRow struct {
	ID        string    `gorm:"column:id;type:varchar(36);primaryKey"`
	AuthorID  string    `gorm:"column:author_id;type:varchar(36);not null;index"`
	Content   string    `gorm:"column:content;type:varchar(800);not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index"`
}

func (tweetRow) TableName() string { return "tweets" }

type likeRow struct {
	UserID    string    `gorm:"column:user_id;type:varchar(36);primaryKey"`
	TweetID   string    `gorm:"column:tweet_id;type:varchar(36);primaryKey;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (likeRow) TableName() string { return "likes" }

func (r userRow) model() models.User {
	return models.User{ID: r.ID, Username: r.Username, Email: r.Email, PasswordHash: r.PasswordHash, CreatedAt: r.CreatedAt}
}

func (r followRow) model() models.Follow {
	return models.Follow{FollowerID: r.FollowerID, FollowingID: r.FollowingID, CreatedAt: r.CreatedAt}
}

func (r tweetRow) model() models.Tweet {
	return models.Tweet{ID: r.ID, AuthorID: r.AuthorID, Content: r.Content, CreatedAt: r.CreatedAt}
}

// --- Store Implementation ---

type SQLStore struct {
	db *gorm.DB
}

// NewSQL opens the configured database and migrates the schema.
func NewSQL(cfg SQLConfig) (*SQLStore, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
		)
		dialector = postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true})
	case "mysql":
		dsn := fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
		)
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(cfg.FilePath)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(&userRow{}, &followRow{}, &tweetRow{}, &likeRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	logg.Info("store", "Connected to SQL database (driver "+cfg.Driver+")")
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() {
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
		logg.Info("store", "SQL connection closed")
	}
}

// --- User operations ---

func (s *SQLStore) CreateUser(ctx context.Context, u models.User) error {
	row := userRow{ID: u.ID, Username: u.Username, Email: u.Email, PasswordHash: u.PasswordHash, CreatedAt: u.CreatedAt}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		logg.Error("store", "Failed to create user", res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *SQLStore) GetUserByID(ctx context.Context, id string) (models.User, error) {
	return s.findUser(ctx, "id = ?", id)
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return s.findUser(ctx, "username = ?", username)
}

func (s *SQLStore) findUser(ctx context.Context, cond string, arg string) (models.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where(cond, arg).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, ErrNotFound
		}
		logg.Error("store", "Failed to query user", err)
		return models.User{}, err
	}
	return row.model(), nil
}

// --- Follow operations ---

func (s *SQLStore) CreateFollow(ctx context.Context, followerID, followingID string, at time.Time) (models.Follow, error) {
	if err := checkPair(followerID, followingID); err != nil {
		return models.Follow{}, err
	}

	row := followRow{FollowerID: followerID, FollowingID: followingID, CreatedAt: at}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		logg.Error("store", "Failed to create follow relationship", res.Error)
		return models.Follow{}, res.Error
	}
	if res.RowsAffected == 0 {
		return models.Follow{}, ErrAlreadyExists
	}
	return row.model(), nil
}

func (s *SQLStore) DeleteFollow(ctx context.Context, followerID, followingID string) error {
	if err := checkPair(followerID, followingID); err != nil {
		return err
	}

	res := s.db.WithContext(ctx).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Delete(&followRow{})
	if res.Error != nil {
		logg.Error("store", "Failed to delete follow relationship", res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) IsFollowing(ctx context.Context, followerID, followingID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&followRow{}).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLStore) listFollows(ctx context.Context, cond, userID string) ([]models.Follow, error) {
	var rows []followRow
	if err := s.db.WithContext(ctx).Where(cond, userID).Order("created_at DESC").Find(&rows).Error; err != nil {
		logg.Error("store", "Failed to list follows", err)
		return nil, err
	}
	res := make([]models.Follow, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.model())
	}
	return res, nil
}

func (s *SQLStore) ListFollowing(ctx context.Context, userID string) ([]models.Follow, error) {
	return s.listFollows(ctx, "follower_id = ?", userID)
}

func (s *SQLStore) ListFollowers(ctx context.Context, userID string) ([]models.Follow, error) {
	return s.listFollows(ctx, "following_id = ?", userID)
}

func (s *SQLStore) countFollows(ctx context.Context, cond, userID string) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&followRow{}).Where(cond, userID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *SQLStore) CountFollowing(ctx context.Context, userID string) (int, error) {
	return s.countFollows(ctx, "follower_id = ?", userID)
}

func (s *SQLStore) CountFollowers(ctx context.Context, userID string) (int, error) {
	return s.countFollows(ctx, "following_id = ?", userID)
}

// --- Tweet operations ---

func (s *SQLStore) AddTweet(ctx context.Context, t models.Tweet) error {
	row := tweetRow{ID: t.ID, AuthorID: t.AuthorID, Content: t.Content, CreatedAt: t.CreatedAt}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		logg.Error("store", "Failed to add tweet", res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *SQLStore) GetTweet(ctx context.Context, id string) (models.Tweet, error) {
	var row tweetRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Tweet{}, ErrNotFound
		}
		return models.Tweet{}, err
	}
	return row.model(), nil
}

// DeleteTweet removes the tweet and its likes in one transaction. The tweet
// row is locked for update, so likes being added wait and then see it gone.
func (s *SQLStore) DeleteTweet(ctx context.Context, id, requesterID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row tweetRow
		if err := rowLock(tx, "UPDATE").Where("id = ?", id).Take(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if row.AuthorID != requesterID {
			return ErrForbidden
		}
		if err := tx.Where("tweet_id = ?", id).Delete(&likeRow{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&tweetRow{}).Error
	})
}

func (s *SQLStore) listTweets(q *gorm.DB) ([]models.Tweet, error) {
	var rows []tweetRow
	if err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		logg.Error("store", "Failed to list tweets", err)
		return nil, err
	}
	res := make([]models.Tweet, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.model())
	}
	return res, nil
}

func (s *SQLStore) ListTweetsByAuthor(ctx context.Context, authorID string) ([]models.Tweet, error) {
	return s.listTweets(s.db.WithContext(ctx).Where("author_id = ?", authorID))
}

func (s *SQLStore) ListTweets(ctx context.Context) ([]models.Tweet, error) {
	return s.listTweets(s.db.WithContext(ctx))
}

// --- Like operations ---

func (s *SQLStore) AddLike(ctx context.Context, userID, tweetID string, at time.Time) (int, error) {
	var n int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockTweet(tx, tweetID); err != nil {
			return err
		}
		row := likeRow{UserID: userID, TweetID: tweetID, CreatedAt: at}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return err
		}
		var err error
		n, err = countLikes(tx, tweetID)
		return err
	})
	return n, err
}

func (s *SQLStore) RemoveLike(ctx context.Context, userID, tweetID string) (int, error) {
	var n int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockTweet(tx, tweetID); err != nil {
			return err
		}
		if err := tx.Where("user_id = ? AND tweet_id = ?", userID, tweetID).Delete(&likeRow{}).Error; err != nil {
			return err
		}
		var err error
		n, err = countLikes(tx, tweetID)
		return err
	})
	return n, err
}

// lockTweet holds a shared lock on the tweet row until the transaction ends,
// so a concurrent DeleteTweet cannot remove it between the check and the
// like write.
func lockTweet(tx *gorm.DB, tweetID string) error {
	var row tweetRow
	if err := lockedTweetQuery(tx, tweetID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func lockedTweetQuery(tx *gorm.DB, tweetID string) *gorm.DB {
	return rowLock(tx, "SHARE").Select("id").Where("id = ?", tweetID)
}

// rowLock adds SELECT ... FOR <strength>. SQLite has no row locks and
// serializes writers instead.
func rowLock(tx *gorm.DB, strength string) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: strength})
}

func tweetExists(tx *gorm.DB, tweetID string) error {
	var count int64
	if err := tx.Model(&tweetRow{}).Where("id = ?", tweetID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

func countLikes(tx *gorm.DB, tweetID string) (int, error) {
	var count int64
	if err := tx.Model(&likeRow{}).Where("tweet_id = ?", tweetID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *SQLStore) CountLikes(ctx context.Context, tweetID string) (int, error) {
	db := s.db.WithContext(ctx)
	if err := tweetExists(db, tweetID); err != nil {
		return 0, err
	}
	return countLikes(db, tweetID)
}

func (s *SQLStore) LikeCounts(ctx context.Context, tweetIDs []string) (map[string]int, error) {
	res := make(map[string]int, len(tweetIDs))
	for _, id := range tweetIDs {
		res[id] = 0
	}
	if len(tweetIDs) == 0 {
		return res, nil
	}

	var rows []struct {
		TweetID string
		N       int64
	}
	err := s.db.WithContext(ctx).Model(&likeRow{}).
		Select("tweet_id, COUNT(*) AS n").
		Where("tweet_id IN ?", tweetIDs).
		Group("tweet_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		res[r.TweetID] = int(r.N)
	}
	return res, nil
}

func (s *SQLStore) IsLiked(ctx context.Context, userID, tweetID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&likeRow{}).
		Where("user_id = ? AND tweet_id = ?", userID, tweetID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLStore) LikedTweetIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&likeRow{}).Where("user_id = ?", userID).Pluck("tweet_id", &ids).Error; err != nil {
		return nil, err
	}
	res := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		res[id] = struct{}{}
	}
	return res, nil
}

var _ StoreInterface = (*SQLStore)(nil)
