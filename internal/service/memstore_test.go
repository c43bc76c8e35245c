package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/vestetec-system/internal/model"
	"github.com/mmeshcher/vestetec-system/internal/repository"
)

// memState — хранилище в памяти. Транзакция работает с копией и подменяет состояние только при успехе.
type memState struct {
	nextID int64

	students   map[int64]model.Student
	admins     map[int64]model.Admin
	schools    map[int64]string
	categories map[int64]string
	models     map[int64]string
	fabrics    map[int64]string
	products   map[int64]model.Product
	stock      map[int64]model.StockEntry
	orders     map[int64]model.Order
	items      map[int64]model.OrderItem
	codes      map[int64]model.VerificationCode

	// failures задаёт ошибку, которую вернёт метод с указанным именем.
	failures map[string]error
}

func newMemState() *memState {
	return &memState{
		students:   map[int64]model.Student{},
		admins:     map[int64]model.Admin{},
		schools:    map[int64]string{},
		categories: map[int64]string{},
		models:     map[int64]string{},
		fabrics:    map[int64]string{},
		products:   map[int64]model.Product{},
		stock:      map[int64]model.StockEntry{},
		orders:     map[int64]model.Order{},
		items:      map[int64]model.OrderItem{},
		codes:      map[int64]model.VerificationCode{},
		failures:   map[string]error{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	res := make(map[K]V, len(m))
	for k, v := range m {
		res[k] = v
	}
	return res
}

func (s *memState) clone() *memState {
	return &memState{
		nextID:     s.nextID,
		students:   cloneMap(s.students),
		admins:     cloneMap(s.admins),
		schools:    cloneMap(s.schools),
		categories: cloneMap(s.categories),
		models:     cloneMap(s.models),
		fabrics:    cloneMap(s.fabrics),
		products:   cloneMap(s.products),
		stock:      cloneMap(s.stock),
		orders:     cloneMap(s.orders),
		items:      cloneMap(s.items),
		codes:      cloneMap(s.codes),
		failures:   s.failures,
	}
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memState) fail(method string) error {
	return s.failures[method]
}

type memRepo struct {
	*memState
	mu sync.Mutex
}

func newMemRepo() *memRepo {
	return &memRepo{memState: newMemState()}
}

var (
	_ Repository    = (*memRepo)(nil)
	_ repository.Tx = (*memState)(nil)
)

func (r *memRepo) Close() error { return nil }

func (r *memRepo) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := r.memState.clone()
	if err := fn(tx); err != nil {
		return err
	}
	r.memState = tx
	return nil
}

func (s *memState) totalStock() int {
	n := 0
	for _, e := range s.stock {
		n += e.Quantity
	}
	return n
}

func (s *memState) quantity(productID int64, size string) int {
	for _, e := range s.stock {
		if e.ProductID == productID && e.Size == size {
			return e.Quantity
		}
	}
	return -1
}

func (s *memState) activeCodes(email string) []model.VerificationCode {
	var res []model.VerificationCode
	for _, c := range s.codes {
		if c.Email == email && c.Active {
			res = append(res, c)
		}
	}
	return res
}

// accounts

func (s *memState) CreateStudent(ctx context.Context, st *model.Student) (int64, error) {
	for _, existing := range s.students {
		if existing.Email == st.Email {
			return 0, repository.ErrEmailExists
		}
	}
	if st.SchoolID != nil {
		if _, ok := s.schools[*st.SchoolID]; !ok {
			return 0, repository.ErrInvalidReference
		}
	}
	cp := *st
	cp.ID = s.id()
	s.students[cp.ID] = cp
	return cp.ID, nil
}

func (s *memState) GetStudent(ctx context.Context, id int64) (*model.Student, error) {
	if err := s.fail("GetStudent"); err != nil {
		return nil, err
	}
	st, ok := s.students[id]
	if !ok {
		return nil, repository.ErrStudentNotFound
	}
	return &st, nil
}

func (s *memState) GetStudentByEmail(ctx context.Context, email string) (*model.Student, error) {
	for _, st := range s.students {
		if st.Email == email {
			return &st, nil
		}
	}
	return nil, repository.ErrStudentNotFound
}

func (s *memState) MarkEmailVerified(ctx context.Context, email string) error {
	for id, st := range s.students {
		if st.Email == email {
			st.EmailVerified = true
			s.students[id] = st
			return nil
		}
	}
	return repository.ErrStudentNotFound
}

func (s *memState) IsEmailVerified(ctx context.Context, email string) (bool, error) {
	st, err := s.GetStudentByEmail(ctx, email)
	if err != nil {
		return false, nil
	}
	return st.EmailVerified, nil
}

func (s *memState) GetAdminByEmail(ctx context.Context, email string) (*model.Admin, error) {
	for _, a := range s.admins {
		if strings.EqualFold(a.Email, email) {
			return &a, nil
		}
	}
	return nil, repository.ErrAdminNotFound
}

func (s *memState) GetAdminByID(ctx context.Context, id int64) (*model.Admin, error) {
	a, ok := s.admins[id]
	if !ok {
		return nil, repository.ErrAdminNotFound
	}
	return &a, nil
}

func (s *memState) UpsertAdmin(ctx context.Context, name, email string, hash []byte) (int64, error) {
	if a, err := s.GetAdminByEmail(ctx, email); err == nil {
		a.Name, a.PasswordHash = name, hash
		s.admins[a.ID] = *a
		return a.ID, nil
	}
	id := s.id()
	s.admins[id] = model.Admin{ID: id, Name: name, Email: email, PasswordHash: hash}
	return id, nil
}

// codes

func (s *memState) DeactivateCodes(ctx context.Context, email string) (int64, error) {
	var n int64
	for id, c := range s.codes {
		if c.Email == email && c.Active {
			c.Active = false
			s.codes[id] = c
			n++
		}
	}
	return n, nil
}

func (s *memState) InsertCode(ctx context.Context, c *model.VerificationCode) (int64, error) {
	if err := s.fail("InsertCode"); err != nil {
		return 0, err
	}
	if c.Active && len(s.activeCodes(c.Email)) > 0 {
		return 0, repository.ErrActiveCodeExists
	}
	cp := *c
	cp.ID = s.id()
	s.codes[cp.ID] = cp
	return cp.ID, nil
}

func (s *memState) LatestActiveCode(ctx context.Context, email string) (*model.VerificationCode, error) {
	active := s.activeCodes(email)
	if len(active) == 0 {
		return nil, repository.ErrCodeNotFound
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ExpiresAt.After(active[j].ExpiresAt) })
	return &active[0], nil
}

func (s *memState) DeactivateCode(ctx context.Context, id int64) error {
	c, ok := s.codes[id]
	if ok {
		c.Active = false
		s.codes[id] = c
	}
	return nil
}

func (s *memState) DeactivateExpiredCodes(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for id, c := range s.codes {
		if c.Active && c.ExpiresAt.Before(now) {
			c.Active = false
			s.codes[id] = c
			n++
		}
	}
	return n, nil
}

// catalog

func (s *memState) named(m map[int64]string, name string) (int64, error) {
	id := s.id()
	m[id] = name
	return id, nil
}

func (s *memState) CreateSchool(ctx context.Context, name string) (int64, error) {
	return s.named(s.schools, name)
}

func (s *memState) CreateCategory(ctx context.Context, name string) (int64, error) {
	return s.named(s.categories, name)
}

func (s *memState) CreateGarmentModel(ctx context.Context, name string) (int64, error) {
	return s.named(s.models, name)
}

func (s *memState) CreateFabric(ctx context.Context, name string) (int64, error) {
	return s.named(s.fabrics, name)
}

func (s *memState) InsertProduct(ctx context.Context, p *model.Product) (int64, error) {
	_, okC := s.categories[p.CategoryID]
	_, okM := s.models[p.ModelID]
	if !okC || !okM {
		return 0, repository.ErrInvalidReference
	}
	if p.FabricID != nil {
		if _, ok := s.fabrics[*p.FabricID]; !ok {
			return 0, repository.ErrInvalidReference
		}
	}
	cp := *p
	cp.ID = s.id()
	cp.Stock = nil
	s.products[cp.ID] = cp
	return cp.ID, nil
}

func (s *memState) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return &p, nil
}

func (s *memState) UpdateProductPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	p, ok := s.products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	p.Price = price
	s.products[id] = p
	return nil
}

func (s *memState) ListStock(ctx context.Context, productID int64) ([]model.StockEntry, error) {
	var res []model.StockEntry
	for _, e := range s.stock {
		if e.ProductID == productID {
			res = append(res, e)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *memState) FindStock(ctx context.Context, productID int64, size string) (*model.StockEntry, error) {
	for _, e := range s.stock {
		if e.ProductID == productID && e.Size == size {
			return &e, nil
		}
	}
	return nil, repository.ErrStockNotFound
}

func (s *memState) InsertStock(ctx context.Context, productID int64, size string, quantity int) (int64, error) {
	if _, err := s.FindStock(ctx, productID, size); err == nil {
		return 0, repository.ErrStockExists
	}
	id := s.id()
	s.stock[id] = model.StockEntry{ID: id, ProductID: productID, Size: size, Quantity: quantity}
	return id, nil
}

func (s *memState) DecrementStock(ctx context.Context, stockID int64, quantity int) error {
	e, ok := s.stock[stockID]
	if !ok || e.Quantity < quantity {
		return repository.ErrStockConflict
	}
	e.Quantity -= quantity
	s.stock[stockID] = e
	return nil
}

func (s *memState) IncrementStock(ctx context.Context, stockID int64, quantity int) error {
	e, ok := s.stock[stockID]
	if !ok {
		return repository.ErrStockNotFound
	}
	e.Quantity += quantity
	s.stock[stockID] = e
	return nil
}

// orders

func (s *memState) InsertOrder(ctx context.Context, o *model.Order) (int64, error) {
	cp := *o
	cp.ID = s.id()
	cp.Items = nil
	s.orders[cp.ID] = cp
	return cp.ID, nil
}

func (s *memState) InsertOrderItems(ctx context.Context, orderID int64, items []model.OrderItem) error {
	if err := s.fail("InsertOrderItems"); err != nil {
		return err
	}
	for _, it := range items {
		it.ID = s.id()
		it.OrderID = orderID
		s.items[it.ID] = it
	}
	return nil
}

func (s *memState) orderItems(orderID int64) []model.OrderItem {
	var res []model.OrderItem
	for _, it := range s.items {
		if it.OrderID == orderID {
			res = append(res, it)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (s *memState) GetOrderForUpdate(ctx context.Context, orderID int64) (*model.Order, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	o.Status = model.NormalizeStatus(string(o.Status))
	o.Items = s.orderItems(orderID)
	return &o, nil
}

func (s *memState) SetOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	if err := s.fail("SetOrderStatus"); err != nil {
		return err
	}
	o, ok := s.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.Status = status
	s.orders[orderID] = o
	return nil
}

func (s *memState) DeleteOrder(ctx context.Context, orderID int64) error {
	if _, ok := s.orders[orderID]; !ok {
		return repository.ErrOrderNotFound
	}
	for id, it := range s.items {
		if it.OrderID == orderID {
			delete(s.items, id)
		}
	}
	delete(s.orders, orderID)
	return nil
}

func (s *memState) UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus, delivery *time.Time) error {
	o, ok := s.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.Status = status
	if delivery != nil {
		o.ExpectedDeliveryDate = delivery
	}
	s.orders[orderID] = o
	return nil
}

func (s *memState) UpdateDeliveryDate(ctx context.Context, orderID int64, delivery time.Time) error {
	o, ok := s.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.ExpectedDeliveryDate = &delivery
	s.orders[orderID] = o
	return nil
}

func (s *memState) OrderStatus(ctx context.Context, orderID int64) (model.OrderStatus, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return "", repository.ErrOrderNotFound
	}
	return model.NormalizeStatus(string(o.Status)), nil
}

func (s *memState) GetOrderDetails(ctx context.Context, orderID int64) (*model.OrderDetails, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	st := s.students[o.StudentID]
	d := &model.OrderDetails{
		ID:                   o.ID,
		StudentID:            o.StudentID,
		StudentName:          st.Name,
		StudentEmail:         st.Email,
		SchoolID:             o.SchoolID,
		SchoolName:           s.schools[o.SchoolID],
		CreatedAt:            o.CreatedAt,
		TotalPrice:           o.TotalPrice,
		Status:               model.NormalizeStatus(string(o.Status)),
		ExpectedDeliveryDate: o.ExpectedDeliveryDate,
		Items:                []model.OrderItemDetails{},
	}
	for _, it := range s.orderItems(orderID) {
		p := s.products[it.ProductID]
		fabric := "N/A"
		if p.FabricID != nil {
			fabric = s.fabrics[*p.FabricID]
		}
		d.Items = append(d.Items, model.OrderItemDetails{
			ID:           it.ID,
			ProductID:    it.ProductID,
			ProductName:  s.categories[p.CategoryID] + " " + s.models[p.ModelID],
			CategoryName: s.categories[p.CategoryID],
			ModelName:    s.models[p.ModelID],
			FabricName:   fabric,
			ImageURL:     p.ImageURL,
			UnitPrice:    it.UnitPrice,
			Quantity:     it.Quantity,
			Size:         it.Size,
			LineTotal:    it.LineTotal(),
		})
	}
	return d, nil
}

func (s *memState) summary(o model.Order) model.OrderSummary {
	n := 0
	for _, it := range s.orderItems(o.ID) {
		n += it.Quantity
	}
	return model.OrderSummary{
		ID:                   o.ID,
		StudentName:          s.students[o.StudentID].Name,
		SchoolName:           s.schools[o.SchoolID],
		CreatedAt:            o.CreatedAt,
		TotalPrice:           o.TotalPrice,
		Status:               model.NormalizeStatus(string(o.Status)),
		ExpectedDeliveryDate: o.ExpectedDeliveryDate,
		TotalItems:           n,
	}
}

func (s *memState) sortedOrders() []model.Order {
	res := make([]model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		res = append(res, o)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID > res[j].ID
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res
}

func (s *memState) ListStudentOrders(ctx context.Context, studentID int64) ([]model.OrderSummary, error) {
	res := []model.OrderSummary{}
	for _, o := range s.sortedOrders() {
		if o.StudentID == studentID {
			res = append(res, s.summary(o))
		}
	}
	return res, nil
}

func (s *memState) ListOrders(ctx context.Context, f model.OrderFilter) ([]model.OrderSummary, int, error) {
	var matched []model.OrderSummary
	for _, o := range s.sortedOrders() {
		if f.Status != "" && model.NormalizeStatus(string(o.Status)) != f.Status {
			continue
		}
		if f.SchoolID != nil && o.SchoolID != *f.SchoolID {
			continue
		}
		if f.From != nil && o.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && o.CreatedAt.After(*f.To) {
			continue
		}
		matched = append(matched, s.summary(o))
	}

	start := (f.Page - 1) * f.PageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + f.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return append([]model.OrderSummary{}, matched[start:end]...), len(matched), nil
}

func (s *memState) OrderStatusCounts(ctx context.Context) (map[model.OrderStatus]int, error) {
	res := map[model.OrderStatus]int{}
	for _, o := range s.orders {
		res[model.NormalizeStatus(string(o.Status))]++
	}
	return res, nil
}
