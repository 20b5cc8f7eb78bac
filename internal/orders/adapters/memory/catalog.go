package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// OrderLineRepository keeps order lines in memory.
type OrderLineRepository struct {
	mu    sync.RWMutex
	lines map[string]domain.OrderLine

	// failNext makes the next CreateBatch fail; used to exercise compensation.
	failNext error
}

func NewOrderLineRepository() *OrderLineRepository {
	return &OrderLineRepository{lines: make(map[string]domain.OrderLine)}
}

// FailNextBatch makes the next CreateBatch return err without storing anything.
func (r *OrderLineRepository) FailNextBatch(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = err
}

// CreateBatch stores all lines or none.
func (r *OrderLineRepository) CreateBatch(_ context.Context, lines []domain.OrderLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	for _, line := range lines {
		if _, exists := r.lines[line.ID]; exists {
			return ports.ErrConflict
		}
	}
	for _, line := range lines {
		r.lines[line.ID] = line
	}
	return nil
}

func (r *OrderLineRepository) ListByOrder(_ context.Context, orderID string) ([]domain.OrderLine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []domain.OrderLine{}
	for _, line := range r.lines {
		if line.OrderID == orderID {
			result = append(result, line)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// ProductRepository is an in-memory inventory ledger.
type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

func NewProductRepository(products ...domain.Product) *ProductRepository {
	r := &ProductRepository{products: make(map[string]domain.Product)}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

// Put inserts or replaces a product.
func (r *ProductRepository) Put(product domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[product.ID] = product
}

// Delete removes a product, simulating a concurrent catalog deletion.
func (r *ProductRepository) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.products, id)
}

func (r *ProductRepository) GetByID(_ context.Context, id string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	product, ok := r.products[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &product, nil
}

func (r *ProductRepository) DecrementStock(_ context.Context, id string, quantity int) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	if !product.HasStock(quantity) {
		return nil, ports.ErrInsufficientStock
	}
	product.Quantity -= quantity
	product.UpdatedAt = time.Now().UTC()
	r.products[id] = product
	return &product, nil
}

func (r *ProductRepository) IncrementStock(_ context.Context, id string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[id]
	if !ok {
		return ports.ErrNotFound
	}
	product.Quantity += quantity
	product.UpdatedAt = time.Now().UTC()
	r.products[id] = product
	return nil
}

// CartRepository stores carts with version compare-and-swap.
type CartRepository struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

func NewCartRepository() *CartRepository {
	return &CartRepository{carts: make(map[string]domain.Cart)}
}

func (r *CartRepository) Get(_ context.Context, userID string) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cart, ok := r.carts[userID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	c := cloneCart(cart)
	return &c, nil
}

func (r *CartRepository) Save(_ context.Context, cart *domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.carts[cart.UserID]
	switch {
	case cart.Version == 0 && exists:
		return ports.ErrConflict
	case cart.Version != 0 && (!exists || stored.Version != cart.Version):
		return ports.ErrConflict
	}

	cart.Version++
	cart.UpdatedAt = time.Now().UTC()
	r.carts[cart.UserID] = cloneCart(*cart)
	return nil
}

func cloneCart(cart domain.Cart) domain.Cart {
	cart.Items = append([]domain.CartItem{}, cart.Items...)
	return cart
}

// Directory serves addresses, riders and users from memory and records
// rider order attachments.
type Directory struct {
	mu          sync.RWMutex
	addresses   map[string]domain.Address
	riders      map[string]domain.Rider
	users       map[string]domain.User
	riderOrders map[string][]string
}

func NewDirectory() *Directory {
	return &Directory{
		addresses:   make(map[string]domain.Address),
		riders:      make(map[string]domain.Rider),
		users:       make(map[string]domain.User),
		riderOrders: make(map[string][]string),
	}
}

func (d *Directory) PutAddress(address domain.Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addresses[address.ID] = address
}

func (d *Directory) PutRider(rider domain.Rider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.riders[rider.ID] = rider
}

func (d *Directory) PutUser(user domain.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
}

func (d *Directory) GetAddress(_ context.Context, id string) (*domain.Address, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	address, ok := d.addresses[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &address, nil
}

func (d *Directory) GetRider(_ context.Context, id string) (*domain.Rider, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rider, ok := d.riders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &rider, nil
}

func (d *Directory) GetUser(_ context.Context, id string) (*domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.users[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &user, nil
}

// AttachOrder appends orderID to the rider's order list once.
func (d *Directory) AttachOrder(_ context.Context, riderID, orderID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.riders[riderID]; !ok {
		return ports.ErrNotFound
	}
	for _, existing := range d.riderOrders[riderID] {
		if existing == orderID {
			return nil
		}
	}
	d.riderOrders[riderID] = append(d.riderOrders[riderID], orderID)
	return nil
}

// RiderOrders returns the orders attached to a rider.
func (d *Directory) RiderOrders(riderID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string{}, d.riderOrders[riderID]...)
}

// NotificationRepository collects notifications in memory.
type NotificationRepository struct {
	mu            sync.Mutex
	notifications []domain.Notification
	err           error
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{}
}

// FailWith makes every subsequent Save return err.
func (r *NotificationRepository) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *NotificationRepository) Save(_ context.Context, notification domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.notifications = append(r.notifications, notification)
	return nil
}

// All returns a snapshot of the stored notifications.
func (r *NotificationRepository) All() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Notification{}, r.notifications...)
}
