package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"factotum/pkg/factotum"
)

// moduleRecord stores module metadata and subscriptions managed by the kernel.
type moduleRecord struct {
	name          string
	module        factotum.Module
	capabilities  []factotum.Capability
	subscriptions []factotum.Subscription
	subMu         sync.Mutex
}

// addSubscription tracks subscriptions so module shutdown can close them deterministically.
func (m *moduleRecord) addSubscription(subscription factotum.Subscription) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.subscriptions = append(m.subscriptions, subscription)
}

// closeSubscriptions closes all tracked subscriptions and aggregates close errors.
// It clears the internal slice first to make repeated shutdown paths idempotent.
func (m *moduleRecord) closeSubscriptions(ctx context.Context) error {
	m.subMu.Lock()
	subscriptions := append([]factotum.Subscription(nil), m.subscriptions...)
	m.subscriptions = nil
	m.subMu.Unlock()

	var closeErr error
	for _, subscription := range subscriptions {
		if err := subscription.Close(ctx); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close subscription %s: %w", subscription.Name(), err))
		}
	}

	return closeErr
}

// moduleRuntime is the kernel-owned implementation of factotum.ModuleRuntime.
type moduleRuntime struct {
	moduleName string
	services   factotum.ServiceRegistry
	bus        factotum.EventBus
	record     *moduleRecord
}

// Services returns the kernel service registry visible to the module.
func (r *moduleRuntime) Services() factotum.ServiceRegistry {
	return r.services
}

// Subscribe registers a module-owned subscription after capability checks.
func (r *moduleRuntime) Subscribe(
	ctx context.Context,
	interest factotum.InterestSet,
	spec factotum.SubscriptionSpec,
	handler factotum.EventHandler,
) (factotum.Subscription, error) {
	if spec.Name == "" {
		spec.Name = fmt.Sprintf("%s-subscription", r.moduleName)
	}
	if err := assertSubscriptionAllowed(r.record.capabilities, spec.Name, interest); err != nil {
		return nil, fmt.Errorf("module %s subscribe %s: %w", r.moduleName, spec.Name, err)
	}

	subscription, err := r.bus.Subscribe(ctx, interest, spec, handler)
	if err != nil {
		return nil, fmt.Errorf("module %s subscribe %s: %w", r.moduleName, spec.Name, err)
	}

	r.record.addSubscription(subscription)

	return subscription, nil
}

// assertSubscriptionAllowed enforces capability negotiation at registration time.
// A module can only subscribe to interests covered by at least one declared capability.
func assertSubscriptionAllowed(capabilities []factotum.Capability, subscriptionName string, interest factotum.InterestSet) error {
	if len(capabilities) == 0 {
		return fmt.Errorf("subscription %s requires at least one declared capability", subscriptionName)
	}

	for _, capability := range capabilities {
		if capability.Interest.Allows(interest) {
			return nil
		}
	}

	return fmt.Errorf("subscription does not match declared module capabilities")
}
