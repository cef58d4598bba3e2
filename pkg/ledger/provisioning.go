package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ebank-ledger/pkg/metrics"

	"github.com/shopspring/decimal"
)

// NumberFilter answers "was this external number possibly registered?".
// MayContain must never return false for a number that was added.
type NumberFilter interface {
	MayContain(number string) bool
	Add(number string)
}

// Provisioner opens new accounts.
type Provisioner struct {
	store   Store
	users   UserDirectory
	filter  NumberFilter
	metrics metrics.Collector
}

// ProvisionerConfig holds the optional collaborators of a Provisioner.
type ProvisionerConfig struct {
	// Filter lets CreateAccount skip the duplicate lookup for numbers that
	// were never registered. The store's own uniqueness check still decides.
	Filter NumberFilter

	Metrics metrics.Collector
}

// NewProvisioner creates a provisioner writing to store and resolving owners
// through users.
func NewProvisioner(store Store, users UserDirectory, config ProvisionerConfig) *Provisioner {
	if config.Metrics == nil {
		config.Metrics = metrics.NoOpCollector{}
	}
	return &Provisioner{
		store:   store,
		users:   users,
		filter:  config.Filter,
		metrics: config.Metrics,
	}
}

// CreateAccount opens an account with a zero balance for ownerUsername under
// the given external number.
func (p *Provisioner) CreateAccount(ctx context.Context, number, ownerUsername string) (Account, error) {
	start := time.Now()
	account, err := p.createAccount(ctx, number, ownerUsername)
	p.metrics.RecordOperation(OpCreateAccount, Classify(err), time.Since(start))
	return account, err
}

func (p *Provisioner) createAccount(ctx context.Context, number, ownerUsername string) (Account, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return Account{}, ErrInvalidExternalNumber
	}

	if p.filter == nil || p.filter.MayContain(number) {
		_, err := p.store.Accounts().GetByNumber(ctx, number)
		switch {
		case err == nil:
			p.remember(number)
			return Account{}, fmt.Errorf("%w: %s", ErrDuplicateExternalNumber, number)
		case !errors.Is(err, ErrAccountNotFound):
			return Account{}, err
		}
	}

	owner, err := p.users.FindByUsername(ctx, ownerUsername)
	if err != nil {
		return Account{}, err
	}

	var created Account
	err = p.store.Atomic(ctx, func(tx Tx) error {
		var err error
		created, err = tx.Accounts().Save(ctx, Account{
			Number:  number,
			Owner:   owner.Username,
			Balance: decimal.Zero,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateExternalNumber) {
			p.remember(number)
		}
		return Account{}, err
	}

	p.remember(number)
	return created, nil
}

// WarmFilter adds the number of every stored account to the filter and
// returns how many were added.
func (p *Provisioner) WarmFilter(ctx context.Context) (int, error) {
	if p.filter == nil {
		return 0, nil
	}

	// Ids start at 1, so excluding 0 lists everything.
	accounts, err := p.store.Accounts().ListExcluding(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("warm number filter: %w", err)
	}
	for _, a := range accounts {
		p.filter.Add(a.Number)
	}
	return len(accounts), nil
}

func (p *Provisioner) remember(number string) {
	if p.filter != nil {
		p.filter.Add(number)
	}
}
