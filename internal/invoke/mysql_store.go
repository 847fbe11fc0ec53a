package invoke

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "OpenMCP-Forge/internal/errors"
	"OpenMCP-Forge/internal/tools"
)

// MySQLStore 使用 MySQL 记录调用状态。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.runMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Create 实现 Store 接口。
func (s *MySQLStore) Create(ctx context.Context, in *Invocation) error {
	if in == nil || in.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "invocation 不能为空")
	}
	params, err := encodeJSON(in.Params)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	if in.CreatedAt == 0 {
		in.CreatedAt = now
	}
	in.UpdatedAt = now

	const query = `INSERT INTO invocation_records
        (id, tool, params, status, attempts, max_retries, last_error, error_code, result, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query,
		in.ID, in.Tool, params, string(in.Status), in.Attempts, in.MaxRetries,
		in.LastError, in.ErrorCode, in.CreatedAt, in.UpdatedAt,
	); err != nil {
		if isDuplicateEntry(err) {
			return ErrInvocationConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入调用记录失败")
	}
	return nil
}

// Get 返回调用记录。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Invocation, error) {
	const query = `SELECT id, tool, params, status, attempts, max_retries, last_error, error_code, result, created_at, updated_at
        FROM invocation_records WHERE id = ?`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

// Claim 在单条 UPDATE 里完成状态检查与占用，避免两个 worker 抢到同一条记录。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Invocation, error) {
	const update = `UPDATE invocation_records
        SET status = ?, attempts = attempts + 1, last_error = '', error_code = '', updated_at = ?
        WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`
	result, err := s.db.ExecContext(ctx, update,
		string(StatusRunning), time.Now().Unix(), id, string(StatusPending), string(StatusFailed))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "领取调用失败")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取影响行数失败")
	}
	record, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if affected == 0 {
		switch record.Status {
		case StatusSucceeded:
			return record, ErrInvocationCompleted
		case StatusRunning:
			return record, ErrInvocationConflict
		default:
			return record, ErrInvocationExhausted
		}
	}
	return record, nil
}

// MarkSucceeded 记录成功结果。
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, result *tools.Payload) error {
	encoded, err := encodeJSON(result)
	if err != nil {
		return err
	}
	const query = `UPDATE invocation_records
        SET status = ?, result = ?, last_error = '', error_code = '', updated_at = ?
        WHERE id = ?`
	return s.exec(ctx, query, string(StatusSucceeded), encoded, time.Now().Unix(), id)
}

// MarkFailed 标记调用失败。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, result *tools.Payload, terminal bool) error {
	status := StatusPending
	if terminal {
		status = StatusFailed
	}
	encoded, err := encodeJSON(result)
	if err != nil {
		return err
	}
	const query = `UPDATE invocation_records
        SET status = ?, last_error = ?, error_code = ?, result = COALESCE(?, result), updated_at = ?
        WHERE id = ?`
	return s.exec(ctx, query, string(status), lastError, string(code), encoded, time.Now().Unix(), id)
}

// List 返回最近的调用记录。
func (s *MySQLStore) List(ctx context.Context, limit int) ([]*Invocation, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT id, tool, params, status, attempts, max_retries, last_error, error_code, result, created_at, updated_at
        FROM invocation_records ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询调用记录失败")
	}
	defer rows.Close()

	var results []*Invocation
	for rows.Next() {
		record, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历调用记录失败")
	}
	return results, nil
}

// Close 关闭数据库连接。
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

func (s *MySQLStore) exec(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新调用记录失败")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取影响行数失败")
	}
	if affected == 0 {
		return ErrInvocationNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *MySQLStore) scanOne(row rowScanner) (*Invocation, error) {
	record, err := scanInvocation(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvocationNotFound
		}
		return nil, err
	}
	return record, nil
}

func scanInvocation(row rowScanner) (*Invocation, error) {
	var (
		record    Invocation
		status    string
		params    sql.NullString
		result    sql.NullString
		lastError sql.NullString
		errorCode sql.NullString
	)
	if err := row.Scan(&record.ID, &record.Tool, &params, &status, &record.Attempts,
		&record.MaxRetries, &lastError, &errorCode, &result, &record.CreatedAt, &record.UpdatedAt); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析调用记录失败")
	}
	record.Status = Status(status)
	record.LastError = lastError.String
	record.ErrorCode = errorCode.String
	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &record.Params); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析调用参数失败")
		}
	}
	if result.Valid && result.String != "" {
		var payload tools.Payload
		if err := json.Unmarshal([]byte(result.String), &payload); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析调用结果失败")
		}
		record.Result = &payload
	}
	return &record, nil
}

// encodeJSON 把结构序列化为可入库的文本，nil 序列化为 NULL。
func encodeJSON(v any) (any, error) {
	switch value := v.(type) {
	case map[string]any:
		if value == nil {
			return nil, nil
		}
	case *tools.Payload:
		if value == nil {
			return nil, nil
		}
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化失败")
	}
	return string(encoded), nil
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
