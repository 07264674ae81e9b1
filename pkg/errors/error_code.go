/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package errors

import (
	"fmt"
	"net/http"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const CustosPrefix = "Custos."

/*
   5-digit Error Code Convention: [xx][yyy]
   [xx] Business ID (00-99), used to distinguish errors from different business interfaces.
   00: General errors
   01: Matter/Job related errors
   02: Shard/Scheduler related errors
   03: Checkpoint related errors
   04: Custody/Manifest related errors
   05: Reconcile related errors
   [yyy] Error code range (000-999)
*/

// public: 00xxx
const (
	InternalError         = CustosPrefix + "00001"
	BadRequest            = CustosPrefix + "00002"
	Forbidden             = CustosPrefix + "00003"
	AlreadyExist          = CustosPrefix + "00004"
	NotFound              = CustosPrefix + "00005"
	RequestEntityTooLarge = CustosPrefix + "00006"
	NotImplemented        = CustosPrefix + "00007"
	QuotaInsufficient     = CustosPrefix + "00008"
	Transient             = CustosPrefix + "00009"
	ResourceProcessing    = CustosPrefix + "00010"
)

// matter/job: 01xxx
const (
	MatterNotFound       = CustosPrefix + "01001"
	JobNotFound          = CustosPrefix + "01002"
	InvalidJobTransition = CustosPrefix + "01003"
	PlanTooLarge         = CustosPrefix + "01004"
	EmptyPlan            = CustosPrefix + "01005"
)

// shard/scheduler: 02xxx
const (
	ShardNotFound          = CustosPrefix + "02001"
	LeaseStale             = CustosPrefix + "02002"
	RetryExhausted         = CustosPrefix + "02003"
	InvalidShardTransition = CustosPrefix + "02004"
)

// checkpoint: 03xxx
const (
	CheckpointNotFound  = CustosPrefix + "03001"
	CheckpointCompleted = CustosPrefix + "03002"
	CheckpointInvalid   = CustosPrefix + "03003"
)

// custody/manifest: 04xxx
const (
	ManifestNotFound = CustosPrefix + "04001"
	AlreadySealed    = CustosPrefix + "04002"
	IntegrityError   = CustosPrefix + "04003"
)

// reconcile: 05xxx
const (
	ReconcileNoRows = CustosPrefix + "05001"
)

// entity kinds used by NewNotFound.
const (
	MatterKind     = "Matter"
	JobKind        = "Job"
	ShardKind      = "Shard"
	CheckpointKind = "Checkpoint"
	ManifestKind   = "Manifest"
)

// IsCustos returns true if the specified error carries a Custos error code.
func IsCustos(err error) bool {
	if err == nil {
		return false
	}
	return strings.HasPrefix(string(apierrors.ReasonForError(err)), CustosPrefix)
}

func IsAlreadyExist(err error) bool {
	return apierrors.ReasonForError(err) == AlreadyExist
}

func IsBadRequest(err error) bool {
	return apierrors.ReasonForError(err) == BadRequest
}

func IsInternal(err error) bool {
	return apierrors.ReasonForError(err) == InternalError
}

func IsNotFound(err error) bool {
	switch apierrors.ReasonForError(err) {
	case NotFound, MatterNotFound, JobNotFound, ShardNotFound, CheckpointNotFound, ManifestNotFound:
		return true
	}
	return false
}

func IsLeaseStale(err error) bool {
	return apierrors.ReasonForError(err) == LeaseStale
}

func IsTransient(err error) bool {
	return apierrors.ReasonForError(err) == Transient
}

func IsRetryExhausted(err error) bool {
	return apierrors.ReasonForError(err) == RetryExhausted
}

func IsAlreadySealed(err error) bool {
	return apierrors.ReasonForError(err) == AlreadySealed
}

func IsCheckpointCompleted(err error) bool {
	return apierrors.ReasonForError(err) == CheckpointCompleted
}

func IsIntegrity(err error) bool {
	return apierrors.ReasonForError(err) == IntegrityError
}

func IsReconcileNoRows(err error) bool {
	return apierrors.ReasonForError(err) == ReconcileNoRows
}

func IgnoreFound(err error) error {
	if err == nil || IsNotFound(err) {
		return nil
	}
	return err
}

func GetErrorCode(err error) string {
	if err == nil || !IsCustos(err) {
		return ""
	}
	return string(apierrors.ReasonForError(err))
}

func NewBadRequest(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusBadRequest,
		Reason:  BadRequest,
		Message: fmt.Sprintf("Bad request. %s", message),
	}}
}

func NewInternalError(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusInternalServerError,
		Reason:  InternalError,
		Message: fmt.Sprintf("Internal error. %s", message),
	}}
}

func NewAlreadyExist(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusConflict,
		Reason:  AlreadyExist,
		Message: message,
	}}
}

func NewForbidden(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusForbidden,
		Reason:  Forbidden,
		Message: message,
	}}
}

func NotFoundErrorCode(kind string) metav1.StatusReason {
	switch kind {
	case MatterKind:
		return MatterNotFound
	case JobKind:
		return JobNotFound
	case ShardKind:
		return ShardNotFound
	case CheckpointKind:
		return CheckpointNotFound
	case ManifestKind:
		return ManifestNotFound
	default:
		return NotFound
	}
}

func NewNotFound(kind, name string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status: metav1.StatusFailure,
		Code:   http.StatusNotFound,
		Reason: NotFoundErrorCode(kind),
		Details: &metav1.StatusDetails{
			Kind: kind,
			Name: name,
		},
		Message: fmt.Sprintf("%s %s not found.", kind, name),
	}}
}

func NewNotFoundWithMessage(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusNotFound,
		Reason:  NotFound,
		Message: message,
	}}
}

func NewRequestEntityTooLargeError(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusRequestEntityTooLarge,
		Reason:  RequestEntityTooLarge,
		Message: fmt.Sprintf("Request entity is too large: %s", message),
	}}
}

func NewQuotaInsufficient(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusInternalServerError,
		Reason:  QuotaInsufficient,
		Message: message,
	}}
}

func NewNotImplemented(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusNotImplemented,
		Reason:  NotImplemented,
		Message: message,
	}}
}

// NewTransient marks an upstream failure that the caller may retry with backoff.
func NewTransient(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusServiceUnavailable,
		Reason:  Transient,
		Message: message,
	}}
}

func NewResourceProcessing(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusConflict,
		Reason:  ResourceProcessing,
		Message: message,
	}}
}

func NewInvalidJobTransition(from, to string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusConflict,
		Reason:  InvalidJobTransition,
		Message: fmt.Sprintf("job status cannot move from %s to %s", from, to),
	}}
}

func NewInvalidShardTransition(from, to string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusConflict,
		Reason:  InvalidShardTransition,
		Message: fmt.Sprintf("shard status cannot move from %s to %s", from, to),
	}}
}

func NewPlanTooLarge(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusBadRequest,
		Reason:  PlanTooLarge,
		Message: message,
	}}
}

func NewEmptyPlan(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusBadRequest,
		Reason:  EmptyPlan,
		Message: message,
	}}
}

// NewLeaseStale rejects a write presented with a token that no longer owns the shard.
func NewLeaseStale(shardId int64, workerId string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusConflict,
		Reason:  LeaseStale,
		Message: fmt.Sprintf("worker %s does not hold a live lease on shard %d", workerId, shardId),
	}}
}

func NewRetryExhausted(shardId int64, retries int32) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusConflict,
		Reason:  RetryExhausted,
		Message: fmt.Sprintf("shard %d exceeded its retry budget of %d", shardId, retries),
	}}
}

func NewCheckpointCompleted(checkpointId int64) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusConflict,
		Reason:  CheckpointCompleted,
		Message: fmt.Sprintf("checkpoint %d is completed and cannot be modified", checkpointId),
	}}
}

func NewCheckpointInvalid(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusUnprocessableEntity,
		Reason:  CheckpointInvalid,
		Message: message,
	}}
}

func NewAlreadySealed(manifestId string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusConflict,
		Reason:  AlreadySealed,
		Message: fmt.Sprintf("manifest %s is already sealed", manifestId),
	}}
}

func NewIntegrityError(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusUnprocessableEntity,
		Reason:  IntegrityError,
		Message: message,
	}}
}

func NewReconcileNoRows(message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    http.StatusBadRequest,
		Reason:  ReconcileNoRows,
		Message: message,
	}}
}
