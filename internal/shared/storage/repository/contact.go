// Package repository 联系人相关的存储操作
package repository

import (
	"context"
	"database/sql"
	"time"

	"contacts-api/internal/shared/model"
)

// dateLayout 联系人生日的存取格式，两种方言统一按 'YYYY-MM-DD' 文本扫描
const dateLayout = "2006-01-02"

// contactColumns 联系人查询列，birth_date 经 DateText 归一为文本
func (s *Store) contactColumns() string {
	return `id, first_name, last_name, email, phone_number, ` +
		s.dialect.DateText("birth_date") + ` AS birth_date, additional_data, user_id, created_at, updated_at`
}

// CreateContact 创建联系人并回填自增 ID
func (s *Store) CreateContact(ctx context.Context, contact *model.Contact) error {
	now := time.Now().UTC()
	contact.CreatedAt = now
	contact.UpdatedAt = now
	query := s.rebind(`
		INSERT INTO contacts (first_name, last_name, email, phone_number, birth_date, additional_data, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`)
	return s.db.QueryRowContext(ctx, query,
		contact.FirstName, contact.LastName, contact.Email, contact.PhoneNumber,
		contact.BirthDate.Format(dateLayout), contact.AdditionalData,
		contact.UserID, contact.CreatedAt, contact.UpdatedAt,
	).Scan(&contact.ID)
}

// GetContact 查询归属该用户的联系人，未命中返回 (nil, nil)
func (s *Store) GetContact(ctx context.Context, userID, contactID int64) (*model.Contact, error) {
	query := s.rebind(`SELECT ` + s.contactColumns() + ` FROM contacts WHERE id = $1 AND user_id = $2`)
	c := &model.Contact{}
	var birth string
	err := s.db.QueryRowContext(ctx, query, contactID, userID).Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.PhoneNumber,
		&birth, &c.AdditionalData, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if c.BirthDate, err = time.Parse(dateLayout, birth); err != nil {
		return nil, err
	}
	return c, nil
}

// ListContacts 分页列出该用户的联系人
func (s *Store) ListContacts(ctx context.Context, userID int64, offset, limit int) ([]*model.Contact, error) {
	query := s.rebind(`SELECT ` + s.contactColumns() + ` FROM contacts
		WHERE user_id = $1 ORDER BY id LIMIT $2 OFFSET $3`)
	rows, err := s.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContacts(rows)
}

// UpdateContact 整体更新归属该用户的联系人
func (s *Store) UpdateContact(ctx context.Context, contact *model.Contact) error {
	query := s.rebind(`UPDATE contacts SET first_name = $1, last_name = $2, email = $3,
		phone_number = $4, birth_date = $5, additional_data = $6, updated_at = ` + s.now() + `
		WHERE id = $7 AND user_id = $8`)
	return s.execAffectingOne(ctx, query,
		contact.FirstName, contact.LastName, contact.Email, contact.PhoneNumber,
		contact.BirthDate.Format(dateLayout), contact.AdditionalData,
		contact.ID, contact.UserID)
}

// DeleteContact 删除归属该用户的联系人
func (s *Store) DeleteContact(ctx context.Context, userID, contactID int64) error {
	query := s.rebind(`DELETE FROM contacts WHERE id = $1 AND user_id = $2`)
	return s.execAffectingOne(ctx, query, contactID, userID)
}

// SearchContacts 在名字、姓氏、邮箱上做大小写不敏感的子串匹配
func (s *Store) SearchContacts(ctx context.Context, userID int64, q string, offset, limit int) ([]*model.Contact, error) {
	like := s.dialect.CaseInsensitiveLike()
	// SQLite 占位符不可复用，同一模式绑定三次
	query := s.rebind(`SELECT ` + s.contactColumns() + ` FROM contacts
		WHERE user_id = $1 AND (first_name ` + like + ` $2 OR last_name ` + like + ` $3 OR email ` + like + ` $4)
		ORDER BY id LIMIT $5 OFFSET $6`)
	pattern := "%" + q + "%"
	rows, err := s.db.QueryContext(ctx, query, userID, pattern, pattern, pattern, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContacts(rows)
}

// ListUpcomingBirthdays 列出未来 7 天内过生日的联系人
//
// 只比较月/日，与出生年份无关。窗口分两种情形：
//   - 今天与 7 天后同月：生日月份等于该月且「日」落在 [今天, 7 天后]
//   - 窗口跨月：生日在本月且「日」不早于今天，或在次月且「日」不晚于 7 天后
func (s *Store) ListUpcomingBirthdays(ctx context.Context, userID int64, offset, limit int) ([]*model.Contact, error) {
	today := time.Now()
	next := today.AddDate(0, 0, 7)
	month := s.dialect.DateMonth("birth_date")
	day := s.dialect.DateDay("birth_date")

	var query string
	var args []any
	if today.Month() == next.Month() {
		query = s.rebind(`SELECT ` + s.contactColumns() + ` FROM contacts
			WHERE user_id = $1 AND ` + month + ` = $2 AND ` + day + ` >= $3 AND ` + day + ` <= $4
			ORDER BY id LIMIT $5 OFFSET $6`)
		args = []any{userID, int(today.Month()), today.Day(), next.Day(), limit, offset}
	} else {
		query = s.rebind(`SELECT ` + s.contactColumns() + ` FROM contacts
			WHERE user_id = $1 AND ((` + month + ` = $2 AND ` + day + ` >= $3) OR (` + month + ` = $4 AND ` + day + ` <= $5))
			ORDER BY id LIMIT $6 OFFSET $7`)
		args = []any{userID, int(today.Month()), today.Day(), int(next.Month()), next.Day(), limit, offset}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContacts(rows)
}

func scanContacts(rows *sql.Rows) ([]*model.Contact, error) {
	var contacts []*model.Contact
	for rows.Next() {
		c := &model.Contact{}
		var birth string
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.PhoneNumber,
			&birth, &c.AdditionalData, &c.UserID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(dateLayout, birth)
		if err != nil {
			return nil, err
		}
		c.BirthDate = parsed
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
