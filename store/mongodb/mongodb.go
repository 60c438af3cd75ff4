/*
Package mongodb provides a MongoDB-backed implementation of the storage interfaces.

PURPOSE:
  Same contracts as store/sqlite, for deployments that already run MongoDB.
  Collections: products, invoices (lines embedded), sales_history, users.

STOCK UPDATES:
  AddStock is a single FindOneAndUpdate whose filter carries the floor:

    {_id: id, stock: {$gte: -delta}}  +  {$inc: {stock: delta}}

  No match means unknown product or insufficient stock; a follow-up read
  tells which.

LATEST PER MONTH:
  Answered by an aggregation pipeline:
    $match year -> $sort month, createdAt desc, _id desc
    -> $group by month taking $first -> $replaceRoot -> $sort month

TRANSACTIONS:
  Multi-document transactions need a replica set. Store alone does not
  implement commerce.TxStore; wrap it with Transactional when the server
  supports them.

MONEY AND TIME:
  Decimals are stored as strings to keep exact values. BSON datetimes
  have millisecond precision; snapshot ties are broken by _id.

SEE ALSO:
  - commerce/store.go: Interface definitions
  - store/sqlite/sqlite.go: SQLite implementation
*/
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/backoffice/auth"
	"github.com/warp/backoffice/commerce"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	productsCollection  = "products"
	invoicesCollection  = "invoices"
	snapshotsCollection = "sales_history"
	usersCollection     = "users"
)

// Store implements commerce.Store, commerce.AtomicStockStore,
// commerce.LatestSnapshotFinder and auth.UserStore.
type Store struct {
	client    *mongo.Client
	db        *mongo.Database
	products  *mongo.Collection
	invoices  *mongo.Collection
	snapshots *mongo.Collection
	users     *mongo.Collection
}

// Connect dials uri, checks the connection and prepares indexes.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return New(ctx, client.Database(database))
}

// New wraps an existing database handle.
func New(ctx context.Context, db *mongo.Database) (*Store, error) {
	s := &Store{
		client:    db.Client(),
		db:        db,
		products:  db.Collection(productsCollection),
		invoices:  db.Collection(invoicesCollection),
		snapshots: db.Collection(snapshotsCollection),
		users:     db.Collection(usersCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.invoices.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create invoice indexes: %w", err)
	}
	if _, err := s.snapshots.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "year", Value: 1},
			{Key: "month", Value: 1},
			{Key: "createdAt", Value: -1},
			{Key: "_id", Value: -1},
		},
	}); err != nil {
		return fmt.Errorf("failed to create sales history index: %w", err)
	}
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create user index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Reset drops every document (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	for _, c := range []*mongo.Collection{s.products, s.invoices, s.snapshots, s.users} {
		if _, err := c.DeleteMany(ctx, bson.M{}); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// DOCUMENTS
// =============================================================================

type productDoc struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	Description string    `bson:"description"`
	Price       string    `bson:"price"`
	Stock       int64     `bson:"stock"`
	Category    string    `bson:"category"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

type lineDoc struct {
	ProductID string `bson:"productId"`
	Quantity  int64  `bson:"quantity"`
	UnitPrice string `bson:"unitPrice"`
}

type invoiceDoc struct {
	ID          string    `bson:"_id"`
	UserID      string    `bson:"userId"`
	Lines       []lineDoc `bson:"products"`
	TotalAmount string    `bson:"totalAmount"`
	CreatedAt   time.Time `bson:"createdAt"`
}

type productSalesDoc struct {
	ProductID      string `bson:"productId"`
	TotalUnitsSold int64  `bson:"totalUnitsSold"`
	TotalAmount    string `bson:"totalAmount"`
}

type categorySalesDoc struct {
	Category       string `bson:"category"`
	TotalUnitsSold int64  `bson:"totalUnitsSold"`
	TotalAmount    string `bson:"totalAmount"`
}

type snapshotDoc struct {
	ID                string             `bson:"_id"`
	Month             int                `bson:"month"`
	Year              int                `bson:"year"`
	TotalSalesAmount  string             `bson:"totalSalesAmount"`
	TotalProductsSold int64              `bson:"totalProductsSold"`
	TotalCategorySold int                `bson:"totalCategorySold"`
	MostSoldProducts  []productSalesDoc  `bson:"mostSoldProducts"`
	SalesByCategory   []categorySalesDoc `bson:"salesByCategory"`
	TotalInvoices     int                `bson:"totalInvoices"`
	AmendsID          string             `bson:"amendsId,omitempty"`
	CreatedAt         time.Time          `bson:"createdAt"`
}

type userDoc struct {
	ID           string    `bson:"_id"`
	Username     string    `bson:"username"`
	Email        string    `bson:"email"`
	Role         string    `bson:"role"`
	PasswordHash string    `bson:"passwordHash"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func toProductDoc(p commerce.Product) productDoc {
	return productDoc{
		ID: string(p.ID), Name: p.Name, Description: p.Description, Price: p.Price.String(),
		Stock: p.Stock, Category: string(p.Category), CreatedAt: p.CreatedAt.UTC(), UpdatedAt: p.UpdatedAt.UTC(),
	}
}

func (d productDoc) toDomain() (*commerce.Product, error) {
	price, err := decimal.NewFromString(d.Price)
	if err != nil {
		return nil, fmt.Errorf("product %s: bad price %q: %w", d.ID, d.Price, err)
	}
	return &commerce.Product{
		ID: commerce.ProductID(d.ID), Name: d.Name, Description: d.Description, Price: price,
		Stock: d.Stock, Category: commerce.Category(d.Category), CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}, nil
}

func toInvoiceDoc(inv commerce.Invoice) invoiceDoc {
	lines := make([]lineDoc, len(inv.Lines))
	for i, l := range inv.Lines {
		lines[i] = lineDoc{ProductID: string(l.ProductID), Quantity: l.Quantity, UnitPrice: l.UnitPrice.String()}
	}
	return invoiceDoc{
		ID: string(inv.ID), UserID: string(inv.UserID), Lines: lines,
		TotalAmount: inv.TotalAmount.String(), CreatedAt: inv.CreatedAt.UTC(),
	}
}

func (d invoiceDoc) toDomain() (*commerce.Invoice, error) {
	total, err := decimal.NewFromString(d.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("invoice %s: bad total %q: %w", d.ID, d.TotalAmount, err)
	}
	lines := make([]commerce.LineItem, len(d.Lines))
	for i, l := range d.Lines {
		price, err := decimal.NewFromString(l.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("invoice %s: bad unit price %q: %w", d.ID, l.UnitPrice, err)
		}
		lines[i] = commerce.LineItem{ProductID: commerce.ProductID(l.ProductID), Quantity: l.Quantity, UnitPrice: price}
	}
	return &commerce.Invoice{
		ID: commerce.InvoiceID(d.ID), UserID: commerce.UserID(d.UserID), Lines: lines,
		TotalAmount: total, CreatedAt: d.CreatedAt,
	}, nil
}

func toSnapshotDoc(s commerce.Snapshot) snapshotDoc {
	products := make([]productSalesDoc, len(s.MostSoldProducts))
	for i, p := range s.MostSoldProducts {
		products[i] = productSalesDoc{ProductID: string(p.ProductID), TotalUnitsSold: p.TotalUnitsSold, TotalAmount: p.TotalAmount.String()}
	}
	categories := make([]categorySalesDoc, len(s.SalesByCategory))
	for i, c := range s.SalesByCategory {
		categories[i] = categorySalesDoc{Category: string(c.Category), TotalUnitsSold: c.TotalUnitsSold, TotalAmount: c.TotalAmount.String()}
	}
	return snapshotDoc{
		ID: string(s.ID), Month: int(s.Period.Month), Year: s.Period.Year,
		TotalSalesAmount: s.TotalSalesAmount.String(), TotalProductsSold: s.TotalProductsSold,
		TotalCategorySold: s.TotalCategorySold, MostSoldProducts: products, SalesByCategory: categories,
		TotalInvoices: s.TotalInvoices, AmendsID: string(s.AmendsID), CreatedAt: s.CreatedAt.UTC(),
	}
}

func (d snapshotDoc) toDomain() (*commerce.Snapshot, error) {
	total, err := decimal.NewFromString(d.TotalSalesAmount)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: bad total %q: %w", d.ID, d.TotalSalesAmount, err)
	}
	s := &commerce.Snapshot{
		ID:                commerce.SnapshotID(d.ID),
		Period:            commerce.Period{Month: time.Month(d.Month), Year: d.Year},
		TotalSalesAmount:  total,
		TotalProductsSold: d.TotalProductsSold,
		TotalCategorySold: d.TotalCategorySold,
		TotalInvoices:     d.TotalInvoices,
		AmendsID:          commerce.SnapshotID(d.AmendsID),
		CreatedAt:         d.CreatedAt,
		MostSoldProducts:  make([]commerce.ProductSales, len(d.MostSoldProducts)),
		SalesByCategory:   make([]commerce.CategorySales, len(d.SalesByCategory)),
	}
	for i, p := range d.MostSoldProducts {
		amount, err := decimal.NewFromString(p.TotalAmount)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: bad amount %q: %w", d.ID, p.TotalAmount, err)
		}
		s.MostSoldProducts[i] = commerce.ProductSales{ProductID: commerce.ProductID(p.ProductID), TotalUnitsSold: p.TotalUnitsSold, TotalAmount: amount}
	}
	for i, c := range d.SalesByCategory {
		amount, err := decimal.NewFromString(c.TotalAmount)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: bad amount %q: %w", d.ID, c.TotalAmount, err)
		}
		s.SalesByCategory[i] = commerce.CategorySales{Category: commerce.Category(c.Category), TotalUnitsSold: c.TotalUnitsSold, TotalAmount: amount}
	}
	return s, nil
}

func toUserDoc(u auth.User) userDoc {
	return userDoc{
		ID: string(u.ID), Username: u.Username, Email: u.Email, Role: string(u.Role),
		PasswordHash: u.PasswordHash, CreatedAt: u.CreatedAt.UTC(), UpdatedAt: u.UpdatedAt.UTC(),
	}
}

func (d userDoc) toDomain() *auth.User {
	return &auth.User{
		ID: commerce.UserID(d.ID), Username: d.Username, Email: d.Email, Role: auth.Role(d.Role),
		PasswordHash: d.PasswordHash, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

// =============================================================================
// PRODUCTS
// =============================================================================

func (s *Store) GetProduct(ctx context.Context, id commerce.ProductID) (*commerce.Product, error) {
	var doc productDoc
	err := s.products.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, commerce.NotFound("product", string(id))
		}
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	return doc.toDomain()
}

func (s *Store) ListProducts(ctx context.Context) ([]commerce.Product, error) {
	cursor, err := s.products.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	var docs []productDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}

	products := make([]commerce.Product, 0, len(docs))
	for _, d := range docs {
		p, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, nil
}

func (s *Store) SaveProduct(ctx context.Context, p commerce.Product) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	doc := toProductDoc(p)
	_, err := s.products.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id commerce.ProductID) error {
	return deleteOne(ctx, s.products, "product", string(id))
}

func (s *Store) CompareAndSwapStock(ctx context.Context, id commerce.ProductID, expected, next int64) (bool, error) {
	res, err := s.products.UpdateOne(ctx,
		bson.M{"_id": string(id), "stock": expected},
		bson.M{"$set": bson.M{"stock": next, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to swap stock: %w", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	if _, err := s.GetProduct(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) AddStock(ctx context.Context, id commerce.ProductID, delta int64) (*commerce.Product, error) {
	filter := bson.M{"_id": string(id)}
	if delta < 0 {
		filter["stock"] = bson.M{"$gte": -delta}
	}
	update := bson.M{
		"$inc": bson.M{"stock": delta},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}

	var doc productDoc
	err := s.products.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err == nil {
		return doc.toDomain()
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to adjust stock: %w", err)
	}

	current, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, &commerce.InsufficientStockError{ProductID: id, Available: current.Stock, Requested: -delta}
}

// =============================================================================
// INVOICES
// =============================================================================

func (s *Store) AppendInvoice(ctx context.Context, inv commerce.Invoice) error {
	if _, err := s.invoices.InsertOne(ctx, toInvoiceDoc(inv)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("invoice %s: %w", inv.ID, commerce.ErrDuplicateEntity)
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id commerce.InvoiceID) (*commerce.Invoice, error) {
	var doc invoiceDoc
	err := s.invoices.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, commerce.NotFound("invoice", string(id))
		}
		return nil, fmt.Errorf("failed to find invoice: %w", err)
	}
	return doc.toDomain()
}

func (s *Store) ListInvoices(ctx context.Context) ([]commerce.Invoice, error) {
	return s.findInvoices(ctx, bson.M{})
}

func (s *Store) ListInvoicesByUser(ctx context.Context, userID commerce.UserID) ([]commerce.Invoice, error) {
	return s.findInvoices(ctx, bson.M{"userId": string(userID)})
}

func (s *Store) LoadInvoiceRange(ctx context.Context, from, to time.Time) ([]commerce.Invoice, error) {
	return s.findInvoices(ctx, bson.M{
		"createdAt": bson.M{"$gte": from.UTC(), "$lte": to.UTC()},
	})
}

func (s *Store) findInvoices(ctx context.Context, filter bson.M) ([]commerce.Invoice, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.invoices.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find invoices: %w", err)
	}
	var docs []invoiceDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode invoices: %w", err)
	}

	invoices := make([]commerce.Invoice, 0, len(docs))
	for _, d := range docs {
		inv, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, nil
}

func (s *Store) UpdateInvoice(ctx context.Context, inv commerce.Invoice) error {
	doc := toInvoiceDoc(inv)
	res, err := s.invoices.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	if res.MatchedCount == 0 {
		return commerce.NotFound("invoice", doc.ID)
	}
	return nil
}

func (s *Store) DeleteInvoice(ctx context.Context, id commerce.InvoiceID) error {
	return deleteOne(ctx, s.invoices, "invoice", string(id))
}

// =============================================================================
// SALES HISTORY
// =============================================================================

func (s *Store) SaveSnapshot(ctx context.Context, snap commerce.Snapshot) error {
	if _, err := s.snapshots.InsertOne(ctx, toSnapshotDoc(snap)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("snapshot %s: %w", snap.ID, commerce.ErrDuplicateEntity)
		}
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

func (s *Store) GetSnapshot(ctx context.Context, id commerce.SnapshotID) (*commerce.Snapshot, error) {
	var doc snapshotDoc
	err := s.snapshots.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, commerce.NotFound("snapshot", string(id))
		}
		return nil, fmt.Errorf("failed to find snapshot: %w", err)
	}
	return doc.toDomain()
}

var snapshotSort = bson.D{
	{Key: "year", Value: 1},
	{Key: "month", Value: 1},
	{Key: "createdAt", Value: -1},
	{Key: "_id", Value: -1},
}

func (s *Store) ListSnapshots(ctx context.Context) ([]commerce.Snapshot, error) {
	cursor, err := s.snapshots.Find(ctx, bson.M{}, options.Find().SetSort(snapshotSort))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return decodeSnapshots(ctx, cursor)
}

func (s *Store) ListSnapshotsByYear(ctx context.Context, year int) ([]commerce.Snapshot, error) {
	cursor, err := s.snapshots.Find(ctx, bson.M{"year": year}, options.Find().SetSort(snapshotSort))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return decodeSnapshots(ctx, cursor)
}

// LatestSnapshotsPerMonth runs the latest-per-month pipeline for one year.
func (s *Store) LatestSnapshotsPerMonth(ctx context.Context, year int) ([]commerce.Snapshot, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"year": year}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "month", Value: 1},
			{Key: "createdAt", Value: -1},
			{Key: "_id", Value: -1},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":    "$month",
			"latest": bson.M{"$first": "$$ROOT"},
		}}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$latest"}}},
		{{Key: "$sort", Value: bson.D{{Key: "month", Value: 1}}}},
	}

	cursor, err := s.snapshots.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate sales history: %w", err)
	}
	return decodeSnapshots(ctx, cursor)
}

func (s *Store) DeleteSnapshot(ctx context.Context, id commerce.SnapshotID) error {
	return deleteOne(ctx, s.snapshots, "snapshot", string(id))
}

func decodeSnapshots(ctx context.Context, cursor *mongo.Cursor) ([]commerce.Snapshot, error) {
	var docs []snapshotDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode snapshots: %w", err)
	}
	snaps := make([]commerce.Snapshot, 0, len(docs))
	for _, d := range docs {
		snap, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	return snaps, nil
}

// =============================================================================
// USERS
// =============================================================================

func (s *Store) CreateUser(ctx context.Context, u auth.User) error {
	if _, err := s.users.InsertOne(ctx, toUserDoc(u)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("user %s: %w", u.Email, commerce.ErrDuplicateEntity)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id commerce.UserID) (*auth.User, error) {
	return s.findUser(ctx, bson.M{"_id": string(id)}, string(id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findUser(ctx, bson.M{"email": email}, email)
}

func (s *Store) findUser(ctx context.Context, filter bson.M, key string) (*auth.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, commerce.NotFound("user", key)
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) ListUsers(ctx context.Context) ([]auth.User, error) {
	cursor, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "username", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	users := make([]auth.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, *d.toDomain())
	}
	return users, nil
}

func (s *Store) UpdateUser(ctx context.Context, u auth.User) error {
	doc := toUserDoc(u)
	res, err := s.users.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("user %s: %w", u.Email, commerce.ErrDuplicateEntity)
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return commerce.NotFound("user", doc.ID)
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id commerce.UserID) error {
	return deleteOne(ctx, s.users, "user", string(id))
}

func deleteOne(ctx context.Context, c *mongo.Collection, entity, id string) error {
	res, err := c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", entity, err)
	}
	if res.DeletedCount == 0 {
		return commerce.NotFound(entity, id)
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (commerce.TxStore interface)
// =============================================================================

// TxStore adds multi-document transactions. Requires a replica set.
type TxStore struct {
	*Store
}

func Transactional(s *Store) *TxStore {
	return &TxStore{Store: s}
}

// WithTx runs fn inside a session transaction. The store handed to fn
// routes every call through the session context.
func (t *TxStore) WithTx(ctx context.Context, fn func(commerce.Store) error) error {
	session, err := t.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(&sessionStore{Store: t.Store, sessCtx: sessCtx})
	})
	return err
}

// sessionStore swaps the caller's context for the session context so every
// operation joins the transaction. The caller's deadline is already part of
// sessCtx.
type sessionStore struct {
	*Store
	sessCtx mongo.SessionContext
}

func (s *sessionStore) GetProduct(_ context.Context, id commerce.ProductID) (*commerce.Product, error) {
	return s.Store.GetProduct(s.sessCtx, id)
}

func (s *sessionStore) ListProducts(_ context.Context) ([]commerce.Product, error) {
	return s.Store.ListProducts(s.sessCtx)
}

func (s *sessionStore) SaveProduct(_ context.Context, p commerce.Product) error {
	return s.Store.SaveProduct(s.sessCtx, p)
}

func (s *sessionStore) DeleteProduct(_ context.Context, id commerce.ProductID) error {
	return s.Store.DeleteProduct(s.sessCtx, id)
}

func (s *sessionStore) CompareAndSwapStock(_ context.Context, id commerce.ProductID, expected, next int64) (bool, error) {
	return s.Store.CompareAndSwapStock(s.sessCtx, id, expected, next)
}

func (s *sessionStore) AddStock(_ context.Context, id commerce.ProductID, delta int64) (*commerce.Product, error) {
	return s.Store.AddStock(s.sessCtx, id, delta)
}

func (s *sessionStore) AppendInvoice(_ context.Context, inv commerce.Invoice) error {
	return s.Store.AppendInvoice(s.sessCtx, inv)
}

func (s *sessionStore) GetInvoice(_ context.Context, id commerce.InvoiceID) (*commerce.Invoice, error) {
	return s.Store.GetInvoice(s.sessCtx, id)
}

func (s *sessionStore) ListInvoices(_ context.Context) ([]commerce.Invoice, error) {
	return s.Store.ListInvoices(s.sessCtx)
}

func (s *sessionStore) ListInvoicesByUser(_ context.Context, userID commerce.UserID) ([]commerce.Invoice, error) {
	return s.Store.ListInvoicesByUser(s.sessCtx, userID)
}

func (s *sessionStore) LoadInvoiceRange(_ context.Context, from, to time.Time) ([]commerce.Invoice, error) {
	return s.Store.LoadInvoiceRange(s.sessCtx, from, to)
}

func (s *sessionStore) UpdateInvoice(_ context.Context, inv commerce.Invoice) error {
	return s.Store.UpdateInvoice(s.sessCtx, inv)
}

func (s *sessionStore) DeleteInvoice(_ context.Context, id commerce.InvoiceID) error {
	return s.Store.DeleteInvoice(s.sessCtx, id)
}

func (s *sessionStore) SaveSnapshot(_ context.Context, snap commerce.Snapshot) error {
	return s.Store.SaveSnapshot(s.sessCtx, snap)
}

func (s *sessionStore) GetSnapshot(_ context.Context, id commerce.SnapshotID) (*commerce.Snapshot, error) {
	return s.Store.GetSnapshot(s.sessCtx, id)
}

func (s *sessionStore) ListSnapshots(_ context.Context) ([]commerce.Snapshot, error) {
	return s.Store.ListSnapshots(s.sessCtx)
}

func (s *sessionStore) ListSnapshotsByYear(_ context.Context, year int) ([]commerce.Snapshot, error) {
	return s.Store.ListSnapshotsByYear(s.sessCtx, year)
}

func (s *sessionStore) LatestSnapshotsPerMonth(_ context.Context, year int) ([]commerce.Snapshot, error) {
	return s.Store.LatestSnapshotsPerMonth(s.sessCtx, year)
}

func (s *sessionStore) DeleteSnapshot(_ context.Context, id commerce.SnapshotID) error {
	return s.Store.DeleteSnapshot(s.sessCtx, id)
}
