/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"k8s.io/klog/v2"

	dbutils "github.com/AMD-AIG-AIMA/Custos/pkg/database/utils"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
)

var (
	insertMessageFormat = `INSERT INTO ` + TQueueMessage + ` (%s) VALUES (%s)`
)

func (c *Client) PublishMessage(ctx context.Context, msg *QueueMessage) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	if msg.CreatedAt.Time.IsZero() {
		msg.CreatedAt = dbutils.NullTime(time.Now().UTC())
	}
	if _, err = db.NamedExecContext(ctx, genInsertCommand(*msg, insertMessageFormat, "id"), msg); err != nil {
		klog.ErrorS(err, "failed to publish message", "topic", msg.Topic, "messageId", msg.MessageId)
		return err
	}
	return nil
}

func (c *Client) GetMessage(ctx context.Context, messageId string) (*QueueMessage, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	cmd := fmt.Sprintf(`SELECT * FROM %s WHERE message_id = $1 LIMIT 1`, TQueueMessage)
	var msgs []*QueueMessage
	if err = db.SelectContext(ctx, &msgs, cmd, messageId); err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, customerrors.NewNotFoundWithMessage(fmt.Sprintf("message %s not found", messageId))
	}
	return msgs[0], nil
}

// ClaimMessage claims one pending message using SELECT FOR UPDATE SKIP
// LOCKED. Returns nil when no message is available.
func (c *Client) ClaimMessage(ctx context.Context, topics []string, consumerId string, processTimeout time.Duration) (*QueueMessage, error) {
	if c.gorm == nil {
		return nil, customerrors.NewInternalError("The client of db has not been initialized")
	}
	var msg QueueMessage
	err := c.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Clauses(clause.Locking{
			Strength: "UPDATE",
			Options:  "SKIP LOCKED",
		}).Where("status = ?", MessagePending)
		if len(topics) > 0 {
			query = query.Where("topic IN ?", topics)
		}
		result := query.Order("priority DESC, created_at ASC").First(&msg)
		if result.Error != nil {
			return result.Error
		}

		now := time.Now().UTC()
		msg.Status = MessageProcessing
		msg.ConsumerId = dbutils.NullString(consumerId)
		msg.ClaimedAt = dbutils.NullTime(now)
		msg.TimeoutAt = dbutils.NullTime(now.Add(processTimeout))
		return tx.Save(&msg).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // no pending messages
		}
		return nil, err
	}
	return &msg, nil
}

func (c *Client) CompleteMessage(ctx context.Context, messageId string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET status='%s', completed_at=$1 WHERE message_id=$2 AND status='%s'`,
		TQueueMessage, MessageCompleted, MessageProcessing)
	result, err := db.ExecContext(ctx, cmd, dbutils.NullTime(time.Now().UTC()), messageId)
	if err != nil {
		klog.ErrorS(err, "failed to complete message", "messageId", messageId)
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return customerrors.NewNotFoundWithMessage(fmt.Sprintf("message %s is not processing", messageId))
	}
	return nil
}

// FailMessage records a failure. Under the retry budget the message goes
// back to pending; beyond it the failure is permanent.
func (c *Client) FailMessage(ctx context.Context, messageId, errMsg string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET
		status = CASE WHEN retry_count+1 < max_retries THEN '%s' ELSE '%s' END,
		retry_count = retry_count+1, error=$1, consumer_id=NULL
		WHERE message_id=$2`, TQueueMessage, MessagePending, MessageFailed)
	_, err = db.ExecContext(ctx, cmd, dbutils.NullString(errMsg), messageId)
	if err != nil {
		klog.ErrorS(err, "failed to fail message", "messageId", messageId)
	}
	return err
}

func (c *Client) SelectMessages(ctx context.Context, query sqrl.Sqlizer, limit, offset int) ([]*QueueMessage, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		limit = 10000
	}
	if offset < 0 {
		offset = 0
	}
	sql, args, err := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).
		From(TQueueMessage).
		Where(query).
		OrderBy("created_at asc").
		Limit(uint64(limit)).
		Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, err
	}
	var msgs []*QueueMessage
	ctx2, cancel := context.WithTimeout(ctx, c.RequestTimeout)
	defer cancel()
	err = db.SelectContext(ctx2, &msgs, sql, args...)
	return msgs, err
}

// HandleMessageTimeouts returns timed-out processing messages to pending,
// or fails them permanently once the retry budget is spent.
func (c *Client) HandleMessageTimeouts(ctx context.Context, now time.Time) (int, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET
		status = CASE WHEN retry_count+1 < max_retries THEN '%s' ELSE '%s' END,
		retry_count = retry_count+1, consumer_id=NULL
		WHERE status='%s' AND timeout_at < $1`,
		TQueueMessage, MessagePending, MessageFailed, MessageProcessing)
	result, err := db.ExecContext(ctx, cmd, dbutils.NullTime(now))
	if err != nil {
		klog.ErrorS(err, "failed to handle message timeouts")
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

func (c *Client) CleanupMessages(ctx context.Context, olderThan time.Duration) (int, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	cmd := fmt.Sprintf(`DELETE FROM %s WHERE status IN ('%s','%s') AND created_at < $1`,
		TQueueMessage, MessageCompleted, MessageFailed)
	result, err := db.ExecContext(ctx, cmd, dbutils.NullTime(cutoff))
	if err != nil {
		klog.ErrorS(err, "failed to cleanup messages")
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}
