package db

import (
	"encoding/json"
	"time"
)

// Schedule maps finsift.schedules. Schedule IDs come from the upstream
// collection provider and are opaque strings.
type Schedule struct {
	ScheduleID    string    `gorm:"column:schedule_id;type:text;primaryKey"`
	Name          string    `gorm:"column:name;type:text;not null"`
	IsActive      bool      `gorm:"column:is_active;type:boolean;not null;default:true"`
	Timezone      string    `gorm:"column:timezone;type:text;not null;default:'Asia/Jerusalem'"`
	LookbackHours int       `gorm:"column:lookback_hours;type:integer;not null;default:4"`
	CreatedAt     time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt     time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Schedule) TableName() string { return "finsift.schedules" }

// IngestionRun maps finsift.ingestion_runs.
type IngestionRun struct {
	RunID          string     `gorm:"column:run_id;type:text;primaryKey"`
	ScheduleID     string     `gorm:"column:schedule_id;type:text;not null"`
	RunType        string     `gorm:"column:run_type;type:text;not null;default:'manual'"`
	Status         string     `gorm:"column:status;type:text;not null;default:'running'"`
	WindowStart    *time.Time `gorm:"column:window_start;type:timestamptz"`
	WindowEnd      *time.Time `gorm:"column:window_end;type:timestamptz"`
	StartedAt      time.Time  `gorm:"column:started_at;type:timestamptz;not null;default:now()"`
	FinishedAt     *time.Time `gorm:"column:finished_at;type:timestamptz"`
	TotalRows      int        `gorm:"column:total_rows;type:integer;not null;default:0"`
	ProcessedCount int        `gorm:"column:processed_count;type:integer;not null;default:0"`
	DuplicateCount int        `gorm:"column:duplicate_count;type:integer;not null;default:0"`
	SkippedCount   int        `gorm:"column:skipped_count;type:integer;not null;default:0"`
	ErrorMessage   *string    `gorm:"column:error_message;type:text"`
	CreatedAt      time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (IngestionRun) TableName() string { return "finsift.ingestion_runs" }

// RawPost maps finsift.raw_posts. PostID is the internal unique id, ExternalID
// the provider-side id; the (external_id, source) pair is kept unique by a
// partial index created after auto-migration.
type RawPost struct {
	ID                  int64           `gorm:"column:id;primaryKey;autoIncrement"`
	PostID              string          `gorm:"column:post_id;type:text;not null;unique"`
	ExternalID          *string         `gorm:"column:external_id;type:text"`
	Source              string          `gorm:"column:source;type:text;not null;default:'lobstr'"`
	RunID               *string         `gorm:"column:run_id;type:text"`
	ScheduleID          *string         `gorm:"column:schedule_id;type:text"`
	Content             string          `gorm:"column:content;type:text;not null;default:''"`
	PublishedAt         *time.Time      `gorm:"column:published_at;type:timestamptz"`
	CollectedAt         *time.Time      `gorm:"column:collected_at;type:timestamptz"`
	UserID              *string         `gorm:"column:user_id;type:text"`
	Username            *string         `gorm:"column:username;type:text"`
	InReplyToScreenName *string         `gorm:"column:in_reply_to_screen_name;type:text"`
	IsRetweet           bool            `gorm:"column:is_retweet;type:boolean;not null;default:false"`
	ViewsCount          int64           `gorm:"column:views_count;type:bigint;not null;default:0"`
	RetweetCount        int64           `gorm:"column:retweet_count;type:bigint;not null;default:0"`
	LikesCount          int64           `gorm:"column:likes_count;type:bigint;not null;default:0"`
	QuoteCount          int64           `gorm:"column:quote_count;type:bigint;not null;default:0"`
	ReplyCount          int64           `gorm:"column:reply_count;type:bigint;not null;default:0"`
	BookmarksCount      int64           `gorm:"column:bookmarks_count;type:bigint;not null;default:0"`
	TweetURL            *string         `gorm:"column:tweet_url;type:text"`
	OriginalTweetURL    *string         `gorm:"column:original_tweet_url;type:text"`
	URLs                json.RawMessage `gorm:"column:urls;type:jsonb;not null;default:'[]'"`
	Symbols             json.RawMessage `gorm:"column:symbols;type:jsonb;not null;default:'[]'"`
	Payload             json.RawMessage `gorm:"column:payload;type:jsonb"`
	CreatedAt           time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (RawPost) TableName() string { return "finsift.raw_posts" }

// StructuredPost maps finsift.structured_posts. Label columns hold JSON
// arrays of strings.
type StructuredPost struct {
	ID            int64           `gorm:"column:id;primaryKey;autoIncrement"`
	PostID        string          `gorm:"column:post_id;type:text;not null;unique"`
	Content       string          `gorm:"column:content;type:text;not null;default:''"`
	PublishedAt   *time.Time      `gorm:"column:published_at;type:timestamptz"`
	URLs          json.RawMessage `gorm:"column:urls;type:jsonb;not null;default:'[]'"`
	Symbols       json.RawMessage `gorm:"column:symbols;type:jsonb;not null;default:'[]'"`
	Categories    json.RawMessage `gorm:"column:categories;type:jsonb;not null;default:'[]'"`
	SubCategories json.RawMessage `gorm:"column:sub_categories;type:jsonb;not null;default:'[]'"`
	Tickers       json.RawMessage `gorm:"column:tickers;type:jsonb;not null;default:'[]'"`
	Sectors       json.RawMessage `gorm:"column:sectors;type:jsonb;not null;default:'[]'"`
	Model         *string         `gorm:"column:model;type:text"`
	ClassifiedAt  *time.Time      `gorm:"column:classified_at;type:timestamptz"`
	CreatedAt     time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (StructuredPost) TableName() string { return "finsift.structured_posts" }

func autoMigrateModels() []any {
	return []any{
		&Schedule{},
		&IngestionRun{},
		&RawPost{},
		&StructuredPost{},
	}
}
