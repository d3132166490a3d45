package domain

type CheckoutStatus string

const (
	CheckoutStatusEmpty      CheckoutStatus = "EMPTY"
	CheckoutStatusFilling    CheckoutStatus = "FILLING"
	CheckoutStatusValidating CheckoutStatus = "VALIDATING"
	CheckoutStatusInvalid    CheckoutStatus = "INVALID"
	CheckoutStatusSubmitting CheckoutStatus = "SUBMITTING"
	CheckoutStatusSuccess    CheckoutStatus = "SUCCESS"
	CheckoutStatusFailed     CheckoutStatus = "FAILED"
)

var checkoutTransitions = map[CheckoutStatus][]CheckoutStatus{
	CheckoutStatusEmpty:      {CheckoutStatusFilling},
	CheckoutStatusFilling:    {CheckoutStatusValidating},
	CheckoutStatusValidating: {CheckoutStatusInvalid, CheckoutStatusSubmitting},
	CheckoutStatusInvalid:    {CheckoutStatusFilling},
	CheckoutStatusSubmitting: {CheckoutStatusSuccess, CheckoutStatusFailed},
	CheckoutStatusFailed:     {CheckoutStatusFilling},
}

func CanTransitionTo(from, to CheckoutStatus) bool {
	for _, next := range checkoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusSuccess
}

func (s CheckoutStatus) String() string {
	return string(s)
}
