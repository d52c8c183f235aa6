package service

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/shopspring/decimal"
)

// memDB is an in-memory store with PostgreSQL-like commit semantics: every
// transaction works on a snapshot, and commit fails with a serialization
// error if any row it wrote was changed by a transaction that committed
// first. Unique indexes the service relies on are checked at commit too.
type memDB struct {
	mu          sync.Mutex
	state       *memState
	failCommits int // next N commits fail with 40001
	commits     int

	serial atomic.Int64
	clock  atomic.Int64
}

type memState struct {
	menu        map[uuid.UUID]database.MenuItem
	variants    map[uuid.UUID]database.MenuItemVariant
	recipes     map[uuid.UUID][]database.RecipeIngredient
	customers   map[uuid.UUID]database.Customer
	inventory   map[uuid.UUID]database.InventoryItem
	orders      map[uuid.UUID]database.Order
	items       map[uuid.UUID]database.OrderItem
	sequences   map[uuid.UUID]int64
	assignments map[uuid.UUID]database.MealAssignment
	meals       map[uuid.UUID]database.AvailableMeal
	riders      map[uuid.UUID]database.Rider
	deliveries  map[uuid.UUID]database.Delivery

	history   []database.OrderStatusHistory
	movements []database.StockMovement
	points    []database.LoyaltyTransaction
	locations []database.RiderLocation
	outbox    []database.OutboxEvent
}

func newMemDB() *memDB {
	return &memDB{state: &memState{
		menu:        map[uuid.UUID]database.MenuItem{},
		variants:    map[uuid.UUID]database.MenuItemVariant{},
		recipes:     map[uuid.UUID][]database.RecipeIngredient{},
		customers:   map[uuid.UUID]database.Customer{},
		inventory:   map[uuid.UUID]database.InventoryItem{},
		orders:      map[uuid.UUID]database.Order{},
		items:       map[uuid.UUID]database.OrderItem{},
		sequences:   map[uuid.UUID]int64{},
		assignments: map[uuid.UUID]database.MealAssignment{},
		meals:       map[uuid.UUID]database.AvailableMeal{},
		riders:      map[uuid.UUID]database.Rider{},
		deliveries:  map[uuid.UUID]database.Delivery{},
	}}
}

func (s *memState) clone() *memState {
	return &memState{
		menu:        cloneMap(s.menu),
		variants:    cloneMap(s.variants),
		recipes:     cloneMap(s.recipes),
		customers:   cloneMap(s.customers),
		inventory:   cloneMap(s.inventory),
		orders:      cloneMap(s.orders),
		items:       cloneMap(s.items),
		sequences:   cloneMap(s.sequences),
		assignments: cloneMap(s.assignments),
		meals:       cloneMap(s.meals),
		riders:      cloneMap(s.riders),
		deliveries:  cloneMap(s.deliveries),
		history:     slices.Clone(s.history),
		movements:   slices.Clone(s.movements),
		points:      slices.Clone(s.points),
		locations:   slices.Clone(s.locations),
		outbox:      slices.Clone(s.outbox),
	}
}

func cloneMap[V any](m map[uuid.UUID]V) map[uuid.UUID]V {
	out := make(map[uuid.UUID]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (db *memDB) now() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(db.clock.Add(1)) * time.Millisecond)
}

// Begin implements TxBeginner.
func (db *memDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	st := db.state
	return &memTx{
		db:      db,
		local:   st.clone(),
		touched: map[rowKey]int64{},
		seqs:    map[uuid.UUID]int64{},
		base: appendBase{
			history:   len(st.history),
			movements: len(st.movements),
			points:    len(st.points),
			locations: len(st.locations),
			outbox:    len(st.outbox),
		},
	}, nil
}

func (db *memDB) newStore(tx database.DBTX) Store {
	return &memStore{tx: tx.(*memTx)}
}

// read runs fn against committed state.
func (db *memDB) read(fn func(s *memState)) {
	db.mu.Lock()
	defer db.mu.Unlock()
	fn(db.state)
}

type rowKey struct {
	table string
	id    uuid.UUID
}

const insertedRow = -1

type appendBase struct {
	history, movements, points, locations, outbox int
}

// memTx implements pgx.Tx. Raw SQL methods panic; the service only talks
// to the store.
type memTx struct {
	db      *memDB
	local   *memState
	touched map[rowKey]int64 // version seen at first write, or insertedRow
	seqs    map[uuid.UUID]int64
	base    appendBase
	done    bool
}

var errSerialization = &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}

func (t *memTx) Commit(ctx context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	if t.db.failCommits > 0 {
		t.db.failCommits--
		return errSerialization
	}

	g := t.db.state
	for k, want := range t.touched {
		got, ok := g.version(k)
		if want == insertedRow {
			if ok {
				return errSerialization
			}
			continue
		}
		if !ok || got != want {
			return errSerialization
		}
	}
	for b, want := range t.seqs {
		if g.sequences[b] != want {
			return errSerialization
		}
	}
	for k, want := range t.touched {
		if want != insertedRow {
			continue
		}
		switch k.table {
		case "available_meals":
			m := t.local.meals[k.id]
			for _, o := range g.meals {
				if o.BranchID == m.BranchID && o.MenuItemID == m.MenuItemID {
					return &pgconn.PgError{Code: "23505", ConstraintName: "available_meals_branch_id_menu_item_id_key"}
				}
			}
		case "deliveries":
			d := t.local.deliveries[k.id]
			for _, o := range g.deliveries {
				if o.OrderID == d.OrderID {
					return &pgconn.PgError{Code: "23505", ConstraintName: "deliveries_order_id_key"}
				}
			}
		}
	}

	for k := range t.touched {
		g.copyRow(t.local, k)
	}
	for b := range t.seqs {
		g.sequences[b] = t.local.sequences[b]
	}
	g.history = append(g.history, t.local.history[t.base.history:]...)
	g.movements = append(g.movements, t.local.movements[t.base.movements:]...)
	g.points = append(g.points, t.local.points[t.base.points:]...)
	g.locations = append(g.locations, t.local.locations[t.base.locations:]...)
	g.outbox = append(g.outbox, t.local.outbox[t.base.outbox:]...)
	t.db.commits++
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	return nil
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (t *memTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (t *memTx) Conn() *pgx.Conn { panic("not implemented") }

func (t *memTx) touch(table string, id uuid.UUID, version int64) {
	k := rowKey{table: table, id: id}
	if _, ok := t.touched[k]; !ok {
		t.touched[k] = version
	}
}

func (s *memState) version(k rowKey) (int64, bool) {
	switch k.table {
	case "orders":
		r, ok := s.orders[k.id]
		return int64(r.Version), ok
	case "order_items":
		r, ok := s.items[k.id]
		return int64(r.Version), ok
	case "inventory_items":
		r, ok := s.inventory[k.id]
		return int64(r.Version), ok
	case "customers":
		r, ok := s.customers[k.id]
		return int64(r.Version), ok
	case "meal_assignments":
		r, ok := s.assignments[k.id]
		return int64(r.Version), ok
	case "available_meals":
		r, ok := s.meals[k.id]
		return int64(r.Version), ok
	case "riders":
		r, ok := s.riders[k.id]
		return int64(r.Version), ok
	case "deliveries":
		r, ok := s.deliveries[k.id]
		return int64(r.Version), ok
	}
	panic("unknown table " + k.table)
}

func (s *memState) copyRow(src *memState, k rowKey) {
	switch k.table {
	case "orders":
		copyKey(s.orders, src.orders, k.id)
	case "order_items":
		copyKey(s.items, src.items, k.id)
	case "inventory_items":
		copyKey(s.inventory, src.inventory, k.id)
	case "customers":
		copyKey(s.customers, src.customers, k.id)
	case "meal_assignments":
		copyKey(s.assignments, src.assignments, k.id)
	case "available_meals":
		copyKey(s.meals, src.meals, k.id)
	case "riders":
		copyKey(s.riders, src.riders, k.id)
	case "deliveries":
		copyKey(s.deliveries, src.deliveries, k.id)
	default:
		panic("unknown table " + k.table)
	}
}

func copyKey[V any](dst, src map[uuid.UUID]V, id uuid.UUID) {
	if v, ok := src[id]; ok {
		dst[id] = v
	} else {
		delete(dst, id)
	}
}

var errCheckViolation = &pgconn.PgError{Code: "23514", Message: "check constraint violated"}

// memStore implements Store over one memTx.
type memStore struct {
	tx *memTx
}

func (m *memStore) st() *memState { return m.tx.local }

// --- OrderStore ---

func (m *memStore) NextOrderNumber(ctx context.Context, branchID uuid.UUID) (int64, error) {
	s := m.st()
	if _, ok := m.tx.seqs[branchID]; !ok {
		m.tx.seqs[branchID] = s.sequences[branchID]
	}
	s.sequences[branchID]++
	return s.sequences[branchID], nil
}

func (m *memStore) GetMenuItem(ctx context.Context, arg database.GetMenuItemParams) (database.MenuItem, error) {
	mi, ok := m.st().menu[arg.ID]
	if !ok || mi.BranchID != arg.BranchID {
		return database.MenuItem{}, pgx.ErrNoRows
	}
	return mi, nil
}

func (m *memStore) GetVariant(ctx context.Context, id uuid.UUID) (database.MenuItemVariant, error) {
	v, ok := m.st().variants[id]
	if !ok {
		return database.MenuItemVariant{}, pgx.ErrNoRows
	}
	return v, nil
}

func (m *memStore) ListRecipeIngredients(ctx context.Context, menuItemID uuid.UUID) ([]database.RecipeIngredient, error) {
	return slices.Clone(m.st().recipes[menuItemID]), nil
}

func (m *memStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	now := m.tx.db.now()
	o := database.Order{
		ID:                 uuid.New(),
		BranchID:           arg.BranchID,
		OrderNumber:        arg.OrderNumber,
		OrderType:          arg.OrderType,
		Status:             enum.OrderStatusPending,
		CustomerID:         arg.CustomerID,
		TableNumber:        arg.TableNumber,
		Notes:              arg.Notes,
		Subtotal:           arg.Subtotal,
		TaxAmount:          arg.TaxAmount,
		DiscountAmount:     arg.DiscountAmount,
		TipAmount:          arg.TipAmount,
		DeliveryFee:        arg.DeliveryFee,
		TotalAmount:        arg.TotalAmount,
		DeliveryAddress:    arg.DeliveryAddress,
		DeliveryPhone:      arg.DeliveryPhone,
		DeliveryAssignment: arg.DeliveryAssignment,
		CreatedBy:          arg.CreatedBy,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	m.st().orders[o.ID] = o
	m.tx.touch("orders", o.ID, insertedRow)
	return o, nil
}

func (m *memStore) CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	now := m.tx.db.now()
	it := database.OrderItem{
		ID:                 uuid.New(),
		OrderID:            arg.OrderID,
		MenuItemID:         arg.MenuItemID,
		VariantID:          arg.VariantID,
		ItemName:           arg.ItemName,
		VariantName:        arg.VariantName,
		UnitPrice:          arg.UnitPrice,
		Quantity:           arg.Quantity,
		Modifiers:          arg.Modifiers,
		RemovedIngredients: arg.RemovedIngredients,
		SelectedExtras:     arg.SelectedExtras,
		LineTotal:          arg.LineTotal,
		Station:            arg.Station,
		Status:             enum.OrderItemStatusPending,
		Notes:              arg.Notes,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	m.st().items[it.ID] = it
	m.tx.touch("order_items", it.ID, insertedRow)
	return it, nil
}

func (m *memStore) GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
	o, ok := m.st().orders[arg.ID]
	if !ok || o.BranchID != arg.BranchID {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (m *memStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	var out []database.OrderItem
	for _, it := range m.st().items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	slices.SortFunc(out, func(a, b database.OrderItem) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	s := m.st()
	o, ok := s.orders[arg.ID]
	if !ok || o.Version != arg.Version {
		return database.Order{}, pgx.ErrNoRows
	}
	m.tx.touch("orders", o.ID, int64(o.Version))
	o.Status = arg.Status
	o.StockDeducted = arg.StockDeducted
	o.Version++
	o.UpdatedAt = m.tx.db.now()
	s.orders[o.ID] = o
	return o, nil
}

func (m *memStore) CreateOrderStatusHistory(ctx context.Context, arg database.CreateOrderStatusHistoryParams) (database.OrderStatusHistory, error) {
	h := database.OrderStatusHistory{
		ID:         uuid.New(),
		OrderID:    arg.OrderID,
		FromStatus: arg.FromStatus,
		ToStatus:   arg.ToStatus,
		Actor:      arg.Actor,
		Note:       arg.Note,
		CreatedAt:  m.tx.db.now(),
	}
	m.st().history = append(m.st().history, h)
	return h, nil
}

func (m *memStore) GetOrderItem(ctx context.Context, arg database.GetOrderItemParams) (database.OrderItem, error) {
	it, ok := m.st().items[arg.ID]
	if !ok || it.OrderID != arg.OrderID {
		return database.OrderItem{}, pgx.ErrNoRows
	}
	return it, nil
}

func (m *memStore) UpdateOrderItemStatus(ctx context.Context, arg database.UpdateOrderItemStatusParams) (database.OrderItem, error) {
	s := m.st()
	it, ok := s.items[arg.ID]
	if !ok || it.Version != arg.Version {
		return database.OrderItem{}, pgx.ErrNoRows
	}
	m.tx.touch("order_items", it.ID, int64(it.Version))
	it.Status = arg.Status
	it.Version++
	s.items[it.ID] = it
	return it, nil
}

func (m *memStore) CancelOpenOrderItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	items, _ := m.ListOrderItemsByOrder(ctx, orderID)
	var out []database.OrderItem
	for _, it := range items {
		if it.Status == enum.OrderItemStatusServed || it.Status == enum.OrderItemStatusCancelled {
			continue
		}
		m.tx.touch("order_items", it.ID, int64(it.Version))
		it.Status = enum.OrderItemStatusCancelled
		it.Version++
		m.st().items[it.ID] = it
		out = append(out, it)
	}
	return out, nil
}

func (m *memStore) ListStockMovementsByReference(ctx context.Context, arg database.ListStockMovementsByReferenceParams) ([]database.StockMovement, error) {
	var out []database.StockMovement
	for _, mv := range m.st().movements {
		if mv.ReferenceID == arg.ReferenceID && mv.ReferenceType == arg.ReferenceType {
			out = append(out, mv)
		}
	}
	return out, nil
}

func (m *memStore) ListLoyaltyTransactionsByOrder(ctx context.Context, orderID pgtype.UUID) ([]database.LoyaltyTransaction, error) {
	var out []database.LoyaltyTransaction
	for _, t := range m.st().points {
		if t.OrderID == orderID {
			out = append(out, t)
		}
	}
	return out, nil
}

// --- LedgerStore ---

func (m *memStore) GetInventoryItem(ctx context.Context, id uuid.UUID) (database.InventoryItem, error) {
	it, ok := m.st().inventory[id]
	if !ok {
		return database.InventoryItem{}, pgx.ErrNoRows
	}
	return it, nil
}

func (m *memStore) LockInventoryItem(ctx context.Context, id uuid.UUID) (database.InventoryItem, error) {
	return m.GetInventoryItem(ctx, id)
}

func (m *memStore) UpdateInventoryQuantity(ctx context.Context, arg database.UpdateInventoryQuantityParams) (database.InventoryItem, error) {
	s := m.st()
	it, ok := s.inventory[arg.ID]
	if !ok || it.Version != arg.Version {
		return database.InventoryItem{}, pgx.ErrNoRows
	}
	if database.NumericToDecimal(arg.Quantity).IsNegative() {
		return database.InventoryItem{}, errCheckViolation
	}
	m.tx.touch("inventory_items", it.ID, int64(it.Version))
	it.Quantity = arg.Quantity
	it.Version++
	s.inventory[it.ID] = it
	return it, nil
}

func (m *memStore) CreateStockMovement(ctx context.Context, arg database.CreateStockMovementParams) (database.StockMovement, error) {
	mv := database.StockMovement{
		ID:              uuid.New(),
		InventoryItemID: arg.InventoryItemID,
		BranchID:        arg.BranchID,
		QuantityChange:  arg.QuantityChange,
		QuantityBefore:  arg.QuantityBefore,
		QuantityAfter:   arg.QuantityAfter,
		ReferenceType:   arg.ReferenceType,
		ReferenceID:     arg.ReferenceID,
		Reason:          arg.Reason,
		CreatedBy:       arg.CreatedBy,
		CreatedAt:       m.tx.db.now(),
	}
	m.st().movements = append(m.st().movements, mv)
	return mv, nil
}

func (m *memStore) ListStockMovementsByItem(ctx context.Context, inventoryItemID uuid.UUID) ([]database.StockMovement, error) {
	var out []database.StockMovement
	for _, mv := range m.st().movements {
		if mv.InventoryItemID == inventoryItemID {
			out = append(out, mv)
		}
	}
	return out, nil
}

func (m *memStore) GetCustomer(ctx context.Context, id uuid.UUID) (database.Customer, error) {
	c, ok := m.st().customers[id]
	if !ok {
		return database.Customer{}, pgx.ErrNoRows
	}
	return c, nil
}

func (m *memStore) LockCustomer(ctx context.Context, id uuid.UUID) (database.Customer, error) {
	return m.GetCustomer(ctx, id)
}

func (m *memStore) UpdateCustomerPoints(ctx context.Context, arg database.UpdateCustomerPointsParams) (database.Customer, error) {
	s := m.st()
	c, ok := s.customers[arg.ID]
	if !ok || c.Version != arg.Version {
		return database.Customer{}, pgx.ErrNoRows
	}
	if arg.LoyaltyPointsBalance < 0 {
		return database.Customer{}, errCheckViolation
	}
	m.tx.touch("customers", c.ID, int64(c.Version))
	c.LoyaltyPointsBalance = arg.LoyaltyPointsBalance
	c.Version++
	s.customers[c.ID] = c
	return c, nil
}

func (m *memStore) CreateLoyaltyTransaction(ctx context.Context, arg database.CreateLoyaltyTransactionParams) (database.LoyaltyTransaction, error) {
	t := database.LoyaltyTransaction{
		ID:            uuid.New(),
		CustomerID:    arg.CustomerID,
		OrderID:       arg.OrderID,
		Points:        arg.Points,
		BalanceAfter:  arg.BalanceAfter,
		ReferenceType: arg.ReferenceType,
		Reason:        arg.Reason,
		CreatedAt:     m.tx.db.now(),
	}
	m.st().points = append(m.st().points, t)
	return t, nil
}

func (m *memStore) ListLoyaltyTransactionsByCustomer(ctx context.Context, customerID uuid.UUID) ([]database.LoyaltyTransaction, error) {
	var out []database.LoyaltyTransaction
	for _, t := range m.st().points {
		if t.CustomerID == customerID {
			out = append(out, t)
		}
	}
	return out, nil
}

// --- KitchenStore ---

func (m *memStore) CreateMealAssignment(ctx context.Context, arg database.CreateMealAssignmentParams) (database.MealAssignment, error) {
	now := m.tx.db.now()
	a := database.MealAssignment{
		ID:                  uuid.New(),
		BranchID:            arg.BranchID,
		MenuItemID:          arg.MenuItemID,
		Quantity:            arg.Quantity,
		AssignedTo:          arg.AssignedTo,
		AssignedBy:          arg.AssignedBy,
		Status:              enum.AssignmentStatusPending,
		ExcludedIngredients: arg.ExcludedIngredients,
		Notes:               arg.Notes,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	m.st().assignments[a.ID] = a
	m.tx.touch("meal_assignments", a.ID, insertedRow)
	return a, nil
}

func (m *memStore) GetMealAssignment(ctx context.Context, arg database.GetMealAssignmentParams) (database.MealAssignment, error) {
	a, ok := m.st().assignments[arg.ID]
	if !ok || a.BranchID != arg.BranchID {
		return database.MealAssignment{}, pgx.ErrNoRows
	}
	return a, nil
}

func (m *memStore) UpdateMealAssignment(ctx context.Context, arg database.UpdateMealAssignmentParams) (database.MealAssignment, error) {
	s := m.st()
	a, ok := s.assignments[arg.ID]
	if !ok || a.Version != arg.Version {
		return database.MealAssignment{}, pgx.ErrNoRows
	}
	m.tx.touch("meal_assignments", a.ID, int64(a.Version))
	a.Status = arg.Status
	a.Quantity = arg.Quantity
	a.QuantityCompleted = arg.QuantityCompleted
	a.AssignedTo = arg.AssignedTo
	a.RejectionReason = arg.RejectionReason
	a.Notes = arg.Notes
	a.AcceptedAt = arg.AcceptedAt
	a.StartedAt = arg.StartedAt
	a.CompletedAt = arg.CompletedAt
	a.Version++
	s.assignments[a.ID] = a
	return a, nil
}

func (m *memStore) DeleteMealAssignment(ctx context.Context, arg database.DeleteMealAssignmentParams) (int64, error) {
	s := m.st()
	a, ok := s.assignments[arg.ID]
	if !ok || a.Version != arg.Version || a.Status != enum.AssignmentStatusPending {
		return 0, nil
	}
	m.tx.touch("meal_assignments", a.ID, int64(a.Version))
	delete(s.assignments, a.ID)
	return 1, nil
}

func (m *memStore) GetAvailableMeal(ctx context.Context, arg database.GetAvailableMealParams) (database.AvailableMeal, error) {
	meal, ok := m.st().meals[arg.ID]
	if !ok || meal.BranchID != arg.BranchID {
		return database.AvailableMeal{}, pgx.ErrNoRows
	}
	return meal, nil
}

func (m *memStore) GetAvailableMealByMenuItem(ctx context.Context, arg database.GetAvailableMealByMenuItemParams) (database.AvailableMeal, error) {
	for _, meal := range m.st().meals {
		if meal.BranchID == arg.BranchID && meal.MenuItemID == arg.MenuItemID {
			return meal, nil
		}
	}
	return database.AvailableMeal{}, pgx.ErrNoRows
}

func (m *memStore) CreateAvailableMeal(ctx context.Context, arg database.CreateAvailableMealParams) (database.AvailableMeal, error) {
	if _, err := m.GetAvailableMealByMenuItem(ctx, database.GetAvailableMealByMenuItemParams{
		BranchID: arg.BranchID, MenuItemID: arg.MenuItemID,
	}); err == nil {
		return database.AvailableMeal{}, &pgconn.PgError{Code: "23505", ConstraintName: "available_meals_branch_id_menu_item_id_key"}
	}
	now := m.tx.db.now()
	meal := database.AvailableMeal{
		ID:                uuid.New(),
		BranchID:          arg.BranchID,
		MenuItemID:        arg.MenuItemID,
		QuantityAvailable: arg.QuantityAvailable,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	m.st().meals[meal.ID] = meal
	m.tx.touch("available_meals", meal.ID, insertedRow)
	return meal, nil
}

func (m *memStore) UpdateAvailableMealQuantity(ctx context.Context, arg database.UpdateAvailableMealQuantityParams) (database.AvailableMeal, error) {
	s := m.st()
	meal, ok := s.meals[arg.ID]
	if !ok || meal.Version != arg.Version {
		return database.AvailableMeal{}, pgx.ErrNoRows
	}
	if arg.QuantityAvailable < 0 {
		return database.AvailableMeal{}, errCheckViolation
	}
	m.tx.touch("available_meals", meal.ID, int64(meal.Version))
	meal.QuantityAvailable = arg.QuantityAvailable
	meal.Version++
	s.meals[meal.ID] = meal
	return meal, nil
}

// --- DispatchStore ---

func (m *memStore) CreateDelivery(ctx context.Context, arg database.CreateDeliveryParams) (database.Delivery, error) {
	if _, err := m.GetDeliveryByOrder(ctx, arg.OrderID); err == nil {
		return database.Delivery{}, &pgconn.PgError{Code: "23505", ConstraintName: "deliveries_order_id_key"}
	}
	now := m.tx.db.now()
	d := database.Delivery{
		ID:             uuid.New(),
		OrderID:        arg.OrderID,
		BranchID:       arg.BranchID,
		Status:         enum.DeliveryStatusPendingAssignment,
		AssignmentType: arg.AssignmentType,
		Address:        arg.Address,
		Phone:          arg.Phone,
		Fee:            arg.Fee,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.st().deliveries[d.ID] = d
	m.tx.touch("deliveries", d.ID, insertedRow)
	return d, nil
}

func (m *memStore) GetDelivery(ctx context.Context, arg database.GetDeliveryParams) (database.Delivery, error) {
	d, ok := m.st().deliveries[arg.ID]
	if !ok || d.BranchID != arg.BranchID {
		return database.Delivery{}, pgx.ErrNoRows
	}
	return d, nil
}

func (m *memStore) GetDeliveryByOrder(ctx context.Context, orderID uuid.UUID) (database.Delivery, error) {
	for _, d := range m.st().deliveries {
		if d.OrderID == orderID {
			return d, nil
		}
	}
	return database.Delivery{}, pgx.ErrNoRows
}

func (m *memStore) UpdateDelivery(ctx context.Context, arg database.UpdateDeliveryParams) (database.Delivery, error) {
	s := m.st()
	d, ok := s.deliveries[arg.ID]
	if !ok || d.Version != arg.Version {
		return database.Delivery{}, pgx.ErrNoRows
	}
	m.tx.touch("deliveries", d.ID, int64(d.Version))
	d.Status = arg.Status
	d.RiderID = arg.RiderID
	d.RiderResponse = arg.RiderResponse
	d.AssignmentType = arg.AssignmentType
	d.FailureReason = arg.FailureReason
	d.AssignedAt = arg.AssignedAt
	d.PickedUpAt = arg.PickedUpAt
	d.InTransitAt = arg.InTransitAt
	d.DeliveredAt = arg.DeliveredAt
	d.FailedAt = arg.FailedAt
	d.ReturnedAt = arg.ReturnedAt
	d.CancelledAt = arg.CancelledAt
	d.Version++
	s.deliveries[d.ID] = d
	return d, nil
}

func (m *memStore) GetRider(ctx context.Context, id uuid.UUID) (database.Rider, error) {
	r, ok := m.st().riders[id]
	if !ok {
		return database.Rider{}, pgx.ErrNoRows
	}
	return r, nil
}

func (m *memStore) ListAvailableRiders(ctx context.Context, branchID uuid.UUID) ([]database.Rider, error) {
	var out []database.Rider
	for _, r := range m.st().riders {
		if r.BranchID == branchID && r.IsAvailable && r.ActiveDeliveriesCount < r.MaxConcurrentDeliveries {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b database.Rider) int {
		if a.ActiveDeliveriesCount != b.ActiveDeliveriesCount {
			return int(a.ActiveDeliveriesCount - b.ActiveDeliveriesCount)
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	return out, nil
}

func (m *memStore) UpdateRiderLoad(ctx context.Context, arg database.UpdateRiderLoadParams) (database.Rider, error) {
	s := m.st()
	r, ok := s.riders[arg.ID]
	if !ok || r.Version != arg.Version {
		return database.Rider{}, pgx.ErrNoRows
	}
	if arg.ActiveDeliveriesCount < 0 || arg.ActiveDeliveriesCount > r.MaxConcurrentDeliveries {
		return database.Rider{}, errCheckViolation
	}
	m.tx.touch("riders", r.ID, int64(r.Version))
	r.ActiveDeliveriesCount = arg.ActiveDeliveriesCount
	r.IsOnDelivery = arg.IsOnDelivery
	r.Version++
	s.riders[r.ID] = r
	return r, nil
}

func (m *memStore) CreateRiderLocation(ctx context.Context, arg database.CreateRiderLocationParams) (database.RiderLocation, error) {
	loc := database.RiderLocation{
		ID:         m.tx.db.serial.Add(1),
		RiderID:    arg.RiderID,
		DeliveryID: arg.DeliveryID,
		Latitude:   arg.Latitude,
		Longitude:  arg.Longitude,
		RecordedAt: m.tx.db.now(),
	}
	m.st().locations = append(m.st().locations, loc)
	return loc, nil
}

// --- OutboxWriter ---

func (m *memStore) CreateOutboxEvent(ctx context.Context, arg database.CreateOutboxEventParams) (database.OutboxEvent, error) {
	ev := database.OutboxEvent{
		ID:         m.tx.db.serial.Add(1),
		BranchID:   arg.BranchID,
		EntityType: arg.EntityType,
		EntityID:   arg.EntityID,
		NewState:   arg.NewState,
		Version:    arg.Version,
		Payload:    arg.Payload,
		CreatedAt:  m.tx.db.now(),
	}
	m.st().outbox = append(m.st().outbox, ev)
	return ev, nil
}

// --- Fixtures ---

// fixture seeds committed rows directly, bypassing transactions.
type fixture struct {
	t      *testing.T
	db     *memDB
	branch uuid.UUID
	actor  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{t: t, db: newMemDB(), branch: uuid.New(), actor: uuid.New()}
}

func (f *fixture) engine(opts Options) *Engine {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 50
	}
	if opts.Backoff == 0 {
		opts.Backoff = 50 * time.Microsecond
	}
	if opts.PointsRate.IsZero() {
		opts.PointsRate = decimal.RequireFromString("0.1")
	}
	return NewEngine(f.db, f.db.newStore, opts)
}

func num(s string) pgtype.Numeric {
	return database.QuantityToNumeric(decimal.RequireFromString(s))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) inventory(name, qty, minLevel string) uuid.UUID {
	id := uuid.New()
	f.db.read(func(s *memState) {
		s.inventory[id] = database.InventoryItem{
			ID: id, BranchID: f.branch, Name: name, Unit: "pcs",
			Quantity: num(qty), MinStockLevel: num(minLevel), CostPerUnit: num("0"),
			Version: 1,
		}
		if q := dec(qty); !q.IsZero() {
			s.movements = append(s.movements, database.StockMovement{
				ID: uuid.New(), InventoryItemID: id, BranchID: f.branch,
				QuantityChange: num(qty), QuantityBefore: num("0"), QuantityAfter: num(qty),
				ReferenceType: enum.StockRefAdjustment, Reason: pgtype.Text{String: "opening stock", Valid: true},
			})
		}
	})
	return id
}

// menuItem seeds a menu item whose recipe uses the given amounts.
func (f *fixture) menuItem(name, price string, recipe map[uuid.UUID]string) uuid.UUID {
	id := uuid.New()
	f.db.read(func(s *memState) {
		s.menu[id] = database.MenuItem{
			ID: id, BranchID: f.branch, Name: name, Price: num(price),
			Station: enum.StationKitchen, IsAvailable: true,
		}
		for inv, qty := range recipe {
			s.recipes[id] = append(s.recipes[id], database.RecipeIngredient{MenuItemID: id, InventoryItemID: inv, Quantity: num(qty)})
		}
	})
	return id
}

func (f *fixture) customer(balance int64) uuid.UUID {
	id := uuid.New()
	f.db.read(func(s *memState) {
		s.customers[id] = database.Customer{ID: id, BranchID: f.branch, Name: "Ayu", LoyaltyPointsBalance: balance, Version: 1}
		if balance != 0 {
			s.points = append(s.points, database.LoyaltyTransaction{
				ID: uuid.New(), CustomerID: id, Points: balance, BalanceAfter: balance,
				ReferenceType: enum.PointsRefAdjustment,
			})
		}
	})
	return id
}

func (f *fixture) rider(branch uuid.UUID, capacity int32, active int32, created time.Time) uuid.UUID {
	id := uuid.New()
	f.db.read(func(s *memState) {
		s.riders[id] = database.Rider{
			ID: id, BranchID: branch, Name: "rider-" + id.String()[:4], IsAvailable: true,
			IsOnDelivery: active > 0, ActiveDeliveriesCount: active, MaxConcurrentDeliveries: capacity,
			Version: 1, CreatedAt: created,
		}
	})
	return id
}

func (f *fixture) qty(inventoryID uuid.UUID) decimal.Decimal {
	var q decimal.Decimal
	f.db.read(func(s *memState) { q = database.NumericToDecimal(s.inventory[inventoryID].Quantity) })
	return q
}

func (f *fixture) order(id uuid.UUID) database.Order {
	var o database.Order
	f.db.read(func(s *memState) { o = s.orders[id] })
	return o
}

func (f *fixture) riderRow(id uuid.UUID) database.Rider {
	var r database.Rider
	f.db.read(func(s *memState) { r = s.riders[id] })
	return r
}

func (f *fixture) movementCount() int {
	var n int
	f.db.read(func(s *memState) { n = len(s.movements) })
	return n
}

func (f *fixture) outboxCount() int {
	var n int
	f.db.read(func(s *memState) { n = len(s.outbox) })
	return n
}

func (f *fixture) events(entity string) []database.OutboxEvent {
	var out []database.OutboxEvent
	f.db.read(func(s *memState) {
		for _, ev := range s.outbox {
			if ev.EntityType == entity {
				out = append(out, ev)
			}
		}
	})
	return out
}
