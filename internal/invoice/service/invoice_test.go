package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	cartrepo "github.com/Skotchmaster/storefront/internal/cart/repo"
	cartservice "github.com/Skotchmaster/storefront/internal/cart/service"
	carttransport "github.com/Skotchmaster/storefront/internal/cart/transport"
	"github.com/Skotchmaster/storefront/internal/invoice/receipt"
	"github.com/Skotchmaster/storefront/internal/invoice/repo"
	"github.com/Skotchmaster/storefront/internal/invoice/transport"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/testutil"
	"github.com/Skotchmaster/storefront/pkg/apperr"
	"github.com/Skotchmaster/storefront/pkg/events"
	"github.com/Skotchmaster/storefront/pkg/metrics"
	"github.com/Skotchmaster/storefront/pkg/storage"
)

type env struct {
	db    *gorm.DB
	svc   *InvoiceService
	carts *cartservice.CartService
	store *storage.Local
	rec   *events.Recorder
	reg   *prometheus.Registry
	alice models.Actor
	bob   models.Actor
	admin models.Actor
	atlas *models.Product
	globe *models.Product
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDB(t)

	mkUser := func(username string, role models.Role) models.Actor {
		u := &models.User{
			Name: username, Surname: "Tester", Username: username, Email: username + "@example.com",
			PasswordHash: "x", Role: role, Status: models.StatusActive,
		}
		require.NoError(t, db.Create(u).Error)
		return models.Actor{ID: u.ID, Role: role}
	}

	books := &models.Category{Name: "Books", Status: models.StatusActive}
	require.NoError(t, db.Create(books).Error)
	mkProduct := func(name string, stock int, price int64) *models.Product {
		p := &models.Product{
			Name: name, Stock: stock, Description: name + " description", Price: decimal.NewFromInt(price),
			CategoryID: books.ID, Status: models.StatusActive,
		}
		require.NoError(t, db.Create(p).Error)
		return p
	}

	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	rec := &events.Recorder{}
	reg := prometheus.NewRegistry()

	e := &env{
		db:    db,
		carts: &cartservice.CartService{Repo: &cartrepo.GormRepo{DB: db}},
		store: store,
		rec:   rec,
		reg:   reg,
		alice: mkUser("alice", models.RoleClient),
		bob:   mkUser("bob", models.RoleClient),
		admin: mkUser("root", models.RoleAdmin),
		atlas: mkProduct("Atlas", 5, 10),
		globe: mkProduct("Globe", 3, 25),
	}
	e.svc = &InvoiceService{
		Repo:    &repo.GormRepo{DB: db},
		Store:   store,
		Events:  rec,
		Metrics: metrics.NewCheckoutMetrics(reg),
	}
	return e
}

func (e *env) fillCart(t *testing.T, user models.Actor, product string, qty int) {
	t.Helper()
	_, err := e.carts.UpsertCart(context.Background(), user.ID, carttransport.UpsertCartRequest{
		Name:     "cart",
		Products: []carttransport.LineRequest{{Product: product, Quantity: qty}},
	})
	require.NoError(t, err)
}

func (e *env) product(t *testing.T, id uuid.UUID) models.Product {
	t.Helper()
	var p models.Product
	require.NoError(t, e.db.First(&p, "id = ?", id).Error)
	return p
}

func (e *env) transitions(t *testing.T, state string) float64 {
	t.Helper()
	families, err := e.reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "checkout_transitions_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "state" && lp.GetValue() == state {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func lines(pairs ...any) transport.UpdateInvoiceRequest {
	var req transport.UpdateInvoiceRequest
	for i := 0; i < len(pairs); i += 2 {
		req.Products = append(req.Products, transport.LineRequest{Product: pairs[i].(string), Quantity: pairs[i+1].(int)})
	}
	return req
}

func TestCreateInvoice_BooksAtlasScenario(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	e.fillCart(t, e.alice, "Atlas", 2)

	inv, err := e.svc.CreateInvoice(ctx, e.alice.ID)
	require.NoError(t, err)

	assert.True(t, inv.TotalAmount.Equal(decimal.NewFromInt(20)))
	require.Len(t, inv.Lines, 1)
	assert.Equal(t, "Atlas", inv.Lines[0].Name)
	assert.True(t, inv.Lines[0].UnitPrice.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, models.DocumentEmitted, inv.DocumentState)
	assert.Equal(t, receipt.Key(inv.ID), inv.DocumentKey)

	atlas := e.product(t, e.atlas.ID)
	assert.Equal(t, 3, atlas.Stock)
	assert.Equal(t, 2, atlas.SoldQuantity)

	cart, err := e.carts.GetCart(ctx, e.alice.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)

	rc, err := e.store.Get(ctx, inv.DocumentKey)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-", string(data[:5]))

	assert.Equal(t, "invoice_created", e.rec.Last(events.TopicInvoice)["type"])
	assert.Equal(t, "20.00", e.rec.Last(events.TopicInvoice)["totalAmount"])
	assert.EqualValues(t, 1, e.transitions(t, StateCommitted))
	assert.EqualValues(t, 1, e.transitions(t, StateDocumentEmitted))
}

func TestCreateInvoice_InsufficientStockLeavesEverythingUntouched(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.db.Model(&models.Product{}).Where("id = ?", e.atlas.ID).Update("stock", 10).Error)
	e.fillCart(t, e.alice, "Atlas", 10)
	require.NoError(t, e.db.Model(&models.Product{}).Where("id = ?", e.atlas.ID).Update("stock", 3).Error)

	_, err := e.svc.CreateInvoice(ctx, e.alice.ID)
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)

	atlas := e.product(t, e.atlas.ID)
	assert.Equal(t, 3, atlas.Stock)
	assert.Equal(t, 0, atlas.SoldQuantity)

	var count int64
	require.NoError(t, e.db.Model(&models.Invoice{}).Count(&count).Error)
	assert.Zero(t, count)

	cart, err := e.carts.GetCart(ctx, e.alice.ID)
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 1)
	assert.EqualValues(t, 1, e.transitions(t, StateRejected))
}

func TestCreateInvoice_Rejections(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.CreateInvoice(ctx, e.alice.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	e.fillCart(t, e.alice, "Atlas", 1)
	require.NoError(t, e.carts.ClearCart(ctx, e.alice.ID))
	_, err = e.svc.CreateInvoice(ctx, e.alice.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	e.fillCart(t, e.alice, "Atlas", 1)
	require.NoError(t, e.db.Model(&models.Product{}).Where("id = ?", e.atlas.ID).Update("status", models.StatusInactive).Error)
	_, err = e.svc.CreateInvoice(ctx, e.alice.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreateInvoice_LastUnitSoldOnce(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.db.Model(&models.Product{}).Where("id = ?", e.globe.ID).Update("stock", 1).Error)
	e.fillCart(t, e.alice, "Globe", 1)
	e.fillCart(t, e.bob, "Globe", 1)

	results := make([]error, 2)
	var g errgroup.Group
	for i, user := range []models.Actor{e.alice, e.bob} {
		g.Go(func() error {
			_, err := e.svc.CreateInvoice(ctx, user.ID)
			results[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	}
	assert.Equal(t, 1, succeeded)

	globe := e.product(t, e.globe.ID)
	assert.Equal(t, 0, globe.Stock)
	assert.Equal(t, 1, globe.SoldQuantity)
}

func TestCreateInvoice_ReceiptFailureKeepsSale(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	e.fillCart(t, e.alice, "Atlas", 1)

	e.svc.Render = func(receipt.Receipt) ([]byte, error) { return nil, errors.New("renderer down") }
	inv, err := e.svc.CreateInvoice(ctx, e.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentFailed, inv.DocumentState)
	assert.Equal(t, 4, e.product(t, e.atlas.ID).Stock)
	assert.EqualValues(t, 1, e.transitions(t, StateCommittedFailed))

	e.svc.Render = nil
	rc, name, err := e.svc.Receipt(ctx, e.alice, inv.ID)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, receipt.FileName(inv.ID), name)

	stored, err := e.svc.Repo.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentEmitted, stored.DocumentState)
}

func TestReceipt_RerendersMissingFile(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	e.fillCart(t, e.alice, "Atlas", 1)
	inv, err := e.svc.CreateInvoice(ctx, e.alice.ID)
	require.NoError(t, err)

	_, _, err = e.svc.Receipt(ctx, e.bob, inv.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	var dated time.Time
	e.svc.Now = func() time.Time { return inv.CreatedAt.Add(72 * time.Hour) }
	e.svc.Render = func(r receipt.Receipt) ([]byte, error) {
		dated = r.Date
		return receipt.Render(r)
	}
	require.NoError(t, e.store.Delete(ctx, inv.DocumentKey))
	rc, _, err := e.svc.Receipt(ctx, e.admin, inv.ID)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.WithinDuration(t, inv.CreatedAt, dated, time.Second)

	_, _, err = e.svc.Receipt(ctx, e.alice, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateInvoice_AppliesStockDeltas(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	e.fillCart(t, e.alice, "Atlas", 2)
	inv, err := e.svc.CreateInvoice(ctx, e.alice.ID)
	require.NoError(t, err)

	require.NoError(t, e.db.Model(&models.Product{}).Where("id = ?", e.atlas.ID).Update("price", decimal.NewFromInt(12)).Error)

	updated, err := e.svc.UpdateInvoice(ctx, e.alice, inv.ID, lines("Atlas", 3, "Globe", 1))
	require.NoError(t, err)
	assert.True(t, updated.TotalAmount.Equal(decimal.NewFromInt(55)), "got %s", updated.TotalAmount)
	require.Len(t, updated.Lines, 2)
	assert.True(t, updated.Lines[0].UnitPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, updated.Lines[1].UnitPrice.Equal(decimal.NewFromInt(25)))

	atlas, globe := e.product(t, e.atlas.ID), e.product(t, e.globe.ID)
	assert.Equal(t, 2, atlas.Stock)
	assert.Equal(t, 3, atlas.SoldQuantity)
	assert.Equal(t, 2, globe.Stock)
	assert.Equal(t, 1, globe.SoldQuantity)

	updated, err = e.svc.UpdateInvoice(ctx, e.admin, inv.ID, lines("Globe", 1))
	require.NoError(t, err)
	assert.True(t, updated.TotalAmount.Equal(decimal.NewFromInt(25)))

	atlas = e.product(t, e.atlas.ID)
	assert.Equal(t, 5, atlas.Stock)
	assert.Equal(t, 0, atlas.SoldQuantity)
	assert.Equal(t, "invoice_updated", e.rec.Last(events.TopicInvoice)["type"])
}

func TestUpdateInvoice_Rejections(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	e.fillCart(t, e.alice, "Atlas", 2)
	inv, err := e.svc.CreateInvoice(ctx, e.alice.ID)
	require.NoError(t, err)

	_, err = e.svc.UpdateInvoice(ctx, e.alice, uuid.New(), lines("Atlas", 1))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = e.svc.UpdateInvoice(ctx, e.bob, inv.ID, lines("Atlas", 1))
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = e.svc.UpdateInvoice(ctx, e.alice, inv.ID, lines())
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.UpdateInvoice(ctx, e.alice, inv.ID, lines("Atlas", 0))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.UpdateInvoice(ctx, e.alice, inv.ID, lines("Nope", 1))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = e.svc.UpdateInvoice(ctx, e.alice, inv.ID, lines("Atlas", 2, "Globe", 4))
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Equal(t, 3, e.product(t, e.globe.ID).Stock)
	assert.Equal(t, 3, e.product(t, e.atlas.ID).Stock)

	stored, err := e.svc.Repo.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalAmount.Equal(decimal.NewFromInt(20)))
	require.Len(t, stored.Lines, 1)

	require.NoError(t, e.db.Model(&models.Invoice{}).Where("id = ?", inv.ID).Update("status", models.StatusInactive).Error)
	_, err = e.svc.UpdateInvoice(ctx, e.alice, inv.ID, lines("Atlas", 1))
	assert.ErrorIs(t, err, apperr.ErrAlreadyInactive)
}

func TestListInvoicesForUser(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	e.fillCart(t, e.alice, "Atlas", 1)
	_, err := e.svc.CreateInvoice(ctx, e.alice.ID)
	require.NoError(t, err)

	own, err := e.svc.ListInvoicesForUser(ctx, e.alice, "")
	require.NoError(t, err)
	require.Len(t, own, 1)
	require.Len(t, own[0].Lines, 1)
	assert.Equal(t, "Atlas", own[0].Lines[0].Name)

	_, err = e.svc.ListInvoicesForUser(ctx, e.bob, "alice")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	viaAdmin, err := e.svc.ListInvoicesForUser(ctx, e.admin, "alice")
	require.NoError(t, err)
	assert.Len(t, viaAdmin, 1)

	_, err = e.svc.ListInvoicesForUser(ctx, e.admin, "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	none, err := e.svc.ListInvoicesForUser(ctx, e.bob, "bob")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetInvoiceLines(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	e.fillCart(t, e.alice, "Atlas", 2)
	inv, err := e.svc.CreateInvoice(ctx, e.alice.ID)
	require.NoError(t, err)

	got, err := e.svc.GetInvoiceLines(ctx, e.alice, inv.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Atlas description", got[0].Description)
	assert.True(t, got[0].Subtotal.Equal(decimal.NewFromInt(20)))

	_, err = e.svc.GetInvoiceLines(ctx, e.bob, inv.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}
