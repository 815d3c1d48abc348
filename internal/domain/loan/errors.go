package loan

import "errors"

var (
	ErrNotFound                  = errors.New("loan_not_found")
	ErrNotActive                 = errors.New("loan_not_active")
	ErrDuplicateID               = errors.New("duplicate_loan_id")
	ErrNotBorrower               = errors.New("caller_not_borrower")
	ErrInvalidInput              = errors.New("invalid_input")
	ErrIneligible                = errors.New("credit_ineligible")
	ErrInsufficientLenderBalance = errors.New("insufficient_lender_balance")
	ErrPaymentFailed             = errors.New("payment_failed")
	ErrPastDeadline              = errors.New("past_repayment_deadline")
)
