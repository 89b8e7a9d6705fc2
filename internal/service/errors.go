package service

import (
	"errors"

	"github.com/GoPolymarket/solvergate/internal/pkg/apperrors"
	"github.com/GoPolymarket/solvergate/internal/settlement"
)

var errorTypes = []struct {
	target error
	typ    apperrors.ErrorType
}{
	{settlement.ErrInvalidSignature, apperrors.ErrInvalidSignature},
	{settlement.ErrExpired, apperrors.ErrExpired},
	{settlement.ErrSequenceMismatch, apperrors.ErrSequenceMismatch},
	{settlement.ErrAlreadySettled, apperrors.ErrAlreadySettled},
	{settlement.ErrPolicyRejected, apperrors.ErrPolicyRejected},
	{settlement.ErrValueMismatch, apperrors.ErrValueMismatch},
	{settlement.ErrNothingToWithdraw, apperrors.ErrNothingToWithdraw},
	{settlement.ErrPayoutFailed, apperrors.ErrPayoutFailed},
	{settlement.ErrUnauthorized, apperrors.ErrUnauthorized},
	{settlement.ErrZeroDestination, apperrors.ErrZeroDestination},
	{settlement.ErrReentrantCall, apperrors.ErrReentrant},
	{settlement.ErrInsufficientReserve, apperrors.ErrInsufficientFunds},
	{settlement.ErrInvalidAmount, apperrors.ErrInvalidRequest},
	{settlement.ErrInvalidOrder, apperrors.ErrInvalidRequest},
	{settlement.ErrStorage, apperrors.ErrInternal},
}

// toAppError maps engine sentinels onto API error codes.
func toAppError(err error) *apperrors.AppError {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, m := range errorTypes {
		if errors.Is(err, m.target) {
			return apperrors.New(m.typ, err.Error(), err)
		}
	}
	return apperrors.Wrap(err)
}

// outcome is the metrics label for err.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(toAppError(err).Type)
}
