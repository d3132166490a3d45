package payment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/trilltino/handyman/internal/domain"
)

var simulatedRefusals = []Refusal{
	RefusalInsufficientFunds,
	RefusalCardExpired,
	RefusalFraudSuspected,
	RefusalLimitExceeded,
	RefusalProcessingError,
}

// SimulatedGateway approves roughly approvalRate percent of charges. It stands
// in for the real provider in development and test mode.
type SimulatedGateway struct {
	approvalRate int
	latency      time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSimulatedGateway(approvalRate int, latency time.Duration) *SimulatedGateway {
	return &SimulatedGateway{
		approvalRate: approvalRate,
		latency:      latency,
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *SimulatedGateway) Charge(ctx context.Context, order *domain.OrderRequest) (*ChargeResponse, error) {
	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	roll := s.rnd.Intn(100)
	s.mu.Unlock()

	status, refusal := calcStatus(roll, s.approvalRate)
	return &ChargeResponse{
		Status:    status,
		PaymentID: fmt.Sprintf("SIM-%s", order.ID),
		Refusal:   refusal,
	}, nil
}

// calcStatus maps a roll in [0,100) to an outcome: rolls below the approval
// rate succeed, the rest cycle through the refusal reasons.
func calcStatus(roll, approvalRate int) (ChargeStatus, Refusal) {
	if roll < approvalRate {
		return ChargeSucceeded, ""
	}
	return ChargeDeclined, simulatedRefusals[(roll-approvalRate)%len(simulatedRefusals)]
}
