package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hackgods/medbook/internal/booking"
)

const (
	colSpecialties = "specialties"
	colDoctors     = "doctors"
	colBookings    = "bookings"
	colEvents      = "booking_events"
)

// Store implements booking.Repository on MongoDB. Active bookings carry
// active=true, which backs a partial unique index on the slot triple.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

func Open(ctx context.Context, uri, database string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Store{client: client, db: client.Database(database)}, nil
}

type specialtyDoc struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	Description string    `bson:"description"`
	Icon        string    `bson:"icon"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

type doctorDoc struct {
	ID                string    `bson:"_id"`
	Name              string    `bson:"name"`
	SpecialtyID       string    `bson:"specialty_id"`
	Experience        int       `bson:"experience"`
	Price             float64   `bson:"price"`
	Bio               string    `bson:"bio"`
	ImageURL          string    `bson:"image_url"`
	ConsultationTypes []string  `bson:"consultation_types"`
	CreatedAt         time.Time `bson:"created_at"`
	UpdatedAt         time.Time `bson:"updated_at"`
}

type bookingDoc struct {
	ID               string    `bson:"_id"`
	DoctorID         string    `bson:"doctor_id"`
	PatientName      string    `bson:"patient_name"`
	PatientEmail     string    `bson:"patient_email"`
	PatientPhone     string    `bson:"patient_phone"`
	SlotDate         string    `bson:"slot_date"`
	SlotTime         string    `bson:"slot_time"`
	ConsultationType string    `bson:"consultation_type"`
	Status           string    `bson:"status"`
	Active           bool      `bson:"active"`
	Notes            string    `bson:"notes"`
	CreatedAt        time.Time `bson:"created_at"`
	UpdatedAt        time.Time `bson:"updated_at"`
}

type eventDoc struct {
	EventType string    `bson:"event_type"`
	BookingID *string   `bson:"booking_id,omitempty"`
	Payload   string    `bson:"payload,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

// Migrate creates the indexes. Collections are created implicitly.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Collection(colSpecialties).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetName("specialties_name_key").SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create specialty indexes: %w", err)
	}

	_, err = s.db.Collection(colDoctors).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "specialty_id", Value: 1}}, Options: options.Index().SetName("doctors_specialty_idx")},
		{Keys: bson.D{{Key: "price", Value: 1}}, Options: options.Index().SetName("doctors_price_idx")},
	})
	if err != nil {
		return fmt.Errorf("create doctor indexes: %w", err)
	}

	_, err = s.db.Collection(colBookings).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "doctor_id", Value: 1},
				{Key: "slot_date", Value: 1},
				{Key: "slot_time", Value: 1},
			},
			Options: options.Index().
				SetName("bookings_active_slot_uniq").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "slot_date", Value: 1}},
			Options: options.Index().SetName("bookings_status_date_idx"),
		},
	})
	if err != nil {
		return fmt.Errorf("create booking indexes: %w", err)
	}

	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Reset drops the database. Tests only.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.db.Drop(ctx); err != nil {
		return err
	}
	return s.Migrate(ctx)
}

// Specialties

func (d specialtyDoc) model() (booking.Specialty, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return booking.Specialty{}, fmt.Errorf("specialty id %q: %w", d.ID, err)
	}
	return booking.Specialty{
		ID:          id,
		Name:        d.Name,
		Description: d.Description,
		Icon:        d.Icon,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}, nil
}

func (s *Store) ListSpecialties(ctx context.Context) ([]booking.Specialty, error) {
	cur, err := s.db.Collection(colSpecialties).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find specialties: %w", err)
	}

	var docs []specialtyDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode specialties: %w", err)
	}

	result := make([]booking.Specialty, 0, len(docs))
	for _, d := range docs {
		sp, err := d.model()
		if err != nil {
			return nil, err
		}
		result = append(result, sp)
	}
	return result, nil
}

func (s *Store) GetSpecialtyByID(ctx context.Context, id uuid.UUID) (*booking.Specialty, error) {
	var doc specialtyDoc
	err := s.db.Collection(colSpecialties).FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, booking.ErrSpecialtyNotFound
		}
		return nil, err
	}
	sp, err := doc.model()
	if err != nil {
		return nil, err
	}
	return &sp, nil
}

func (s *Store) CreateSpecialty(ctx context.Context, sp booking.Specialty) (*booking.Specialty, error) {
	_, err := s.db.Collection(colSpecialties).InsertOne(ctx, specialtyDoc{
		ID:          sp.ID.String(),
		Name:        sp.Name,
		Description: sp.Description,
		Icon:        sp.Icon,
		CreatedAt:   sp.CreatedAt,
		UpdatedAt:   sp.UpdatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, booking.ErrDuplicateSpecialty
		}
		return nil, fmt.Errorf("insert specialty: %w", err)
	}
	return s.GetSpecialtyByID(ctx, sp.ID)
}

func (s *Store) UpdateSpecialty(ctx context.Context, sp booking.Specialty) (*booking.Specialty, error) {
	res, err := s.db.Collection(colSpecialties).UpdateByID(ctx, sp.ID.String(), bson.M{"$set": bson.M{
		"name":        sp.Name,
		"description": sp.Description,
		"icon":        sp.Icon,
		"updated_at":  sp.UpdatedAt,
	}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, booking.ErrDuplicateSpecialty
		}
		return nil, fmt.Errorf("update specialty: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, booking.ErrSpecialtyNotFound
	}
	return s.GetSpecialtyByID(ctx, sp.ID)
}

// DeleteSpecialty refuses while doctors reference the specialty. Mongo has no
// foreign keys, so the check and the delete are separate round trips.
func (s *Store) DeleteSpecialty(ctx context.Context, id uuid.UUID) error {
	n, err := s.db.Collection(colDoctors).CountDocuments(ctx, bson.M{"specialty_id": id.String()})
	if err != nil {
		return fmt.Errorf("count doctors: %w", err)
	}
	if n > 0 {
		return booking.ErrSpecialtyInUse
	}

	res, err := s.db.Collection(colSpecialties).DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("delete specialty: %w", err)
	}
	if res.DeletedCount == 0 {
		return booking.ErrSpecialtyNotFound
	}
	return nil
}

// Doctors

func (d doctorDoc) model(specialtyName string) (booking.Doctor, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return booking.Doctor{}, fmt.Errorf("doctor id %q: %w", d.ID, err)
	}
	specialtyID, err := uuid.Parse(d.SpecialtyID)
	if err != nil {
		return booking.Doctor{}, fmt.Errorf("doctor specialty id %q: %w", d.SpecialtyID, err)
	}

	types := make([]booking.ConsultationType, 0, len(d.ConsultationTypes))
	for _, t := range d.ConsultationTypes {
		types = append(types, booking.ConsultationType(t))
	}

	return booking.Doctor{
		ID:                id,
		Name:              d.Name,
		SpecialtyID:       specialtyID,
		SpecialtyName:     specialtyName,
		Experience:        d.Experience,
		Price:             d.Price,
		Bio:               d.Bio,
		ImageURL:          d.ImageURL,
		ConsultationTypes: types,
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}, nil
}

func newDoctorDoc(d booking.Doctor) doctorDoc {
	types := make([]string, 0, len(d.ConsultationTypes))
	for _, t := range d.ConsultationTypes {
		types = append(types, string(t))
	}
	return doctorDoc{
		ID:                d.ID.String(),
		Name:              d.Name,
		SpecialtyID:       d.SpecialtyID.String(),
		Experience:        d.Experience,
		Price:             d.Price,
		Bio:               d.Bio,
		ImageURL:          d.ImageURL,
		ConsultationTypes: types,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func (s *Store) specialtyNames(ctx context.Context) (map[string]string, error) {
	specialties, err := s.ListSpecialties(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(specialties))
	for _, sp := range specialties {
		names[sp.ID.String()] = sp.Name
	}
	return names, nil
}

func (s *Store) ListDoctors(ctx context.Context, f booking.DoctorFilter) ([]booking.Doctor, error) {
	filter := bson.M{}

	if f.SpecialtyName != "" {
		var sp specialtyDoc
		err := s.db.Collection(colSpecialties).FindOne(ctx, bson.M{
			"name": bson.M{"$regex": "^" + regexp.QuoteMeta(f.SpecialtyName) + "$", "$options": "i"},
		}).Decode(&sp)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return []booking.Doctor{}, nil
			}
			return nil, fmt.Errorf("find specialty by name: %w", err)
		}
		filter["specialty_id"] = sp.ID
	}
	if f.SpecialtyID != nil {
		if id, ok := filter["specialty_id"]; ok && id != f.SpecialtyID.String() {
			return []booking.Doctor{}, nil
		}
		filter["specialty_id"] = f.SpecialtyID.String()
	}

	price := bson.M{}
	if f.MinPrice != nil {
		price["$gte"] = *f.MinPrice
	}
	if f.MaxPrice != nil {
		price["$lte"] = *f.MaxPrice
	}
	if len(price) > 0 {
		filter["price"] = price
	}

	cur, err := s.db.Collection(colDoctors).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find doctors: %w", err)
	}
	var docs []doctorDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode doctors: %w", err)
	}

	names, err := s.specialtyNames(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]booking.Doctor, 0, len(docs))
	for _, d := range docs {
		doc, err := d.model(names[d.SpecialtyID])
		if err != nil {
			return nil, err
		}
		result = append(result, doc)
	}
	return result, nil
}

func (s *Store) GetDoctorByID(ctx context.Context, id uuid.UUID) (*booking.Doctor, error) {
	var doc doctorDoc
	err := s.db.Collection(colDoctors).FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, booking.ErrDoctorNotFound
		}
		return nil, err
	}

	var specialtyName string
	if specialtyID, err := uuid.Parse(doc.SpecialtyID); err == nil {
		if sp, err := s.GetSpecialtyByID(ctx, specialtyID); err == nil {
			specialtyName = sp.Name
		}
	}

	d, err := doc.model(specialtyName)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) CreateDoctor(ctx context.Context, d booking.Doctor) (*booking.Doctor, error) {
	if _, err := s.GetSpecialtyByID(ctx, d.SpecialtyID); err != nil {
		return nil, err
	}
	if _, err := s.db.Collection(colDoctors).InsertOne(ctx, newDoctorDoc(d)); err != nil {
		return nil, fmt.Errorf("insert doctor: %w", err)
	}
	return s.GetDoctorByID(ctx, d.ID)
}

func (s *Store) UpdateDoctor(ctx context.Context, d booking.Doctor) (*booking.Doctor, error) {
	doc := newDoctorDoc(d)
	res, err := s.db.Collection(colDoctors).UpdateByID(ctx, doc.ID, bson.M{"$set": bson.M{
		"name":               doc.Name,
		"specialty_id":       doc.SpecialtyID,
		"experience":         doc.Experience,
		"price":              doc.Price,
		"bio":                doc.Bio,
		"image_url":          doc.ImageURL,
		"consultation_types": doc.ConsultationTypes,
		"updated_at":         doc.UpdatedAt,
	}})
	if err != nil {
		return nil, fmt.Errorf("update doctor: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, booking.ErrDoctorNotFound
	}
	return s.GetDoctorByID(ctx, d.ID)
}

func (s *Store) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	n, err := s.db.Collection(colBookings).CountDocuments(ctx, bson.M{"doctor_id": id.String()})
	if err != nil {
		return fmt.Errorf("count bookings: %w", err)
	}
	if n > 0 {
		return booking.ErrDoctorInUse
	}

	res, err := s.db.Collection(colDoctors).DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("delete doctor: %w", err)
	}
	if res.DeletedCount == 0 {
		return booking.ErrDoctorNotFound
	}
	return nil
}

// Bookings

func (d bookingDoc) model() (booking.Booking, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return booking.Booking{}, fmt.Errorf("booking id %q: %w", d.ID, err)
	}
	doctorID, err := uuid.Parse(d.DoctorID)
	if err != nil {
		return booking.Booking{}, fmt.Errorf("booking doctor id %q: %w", d.DoctorID, err)
	}
	date, err := booking.ParseDate(d.SlotDate)
	if err != nil {
		return booking.Booking{}, fmt.Errorf("booking slot date %q: %w", d.SlotDate, err)
	}

	return booking.Booking{
		ID:               id,
		DoctorID:         doctorID,
		PatientName:      d.PatientName,
		PatientEmail:     d.PatientEmail,
		PatientPhone:     d.PatientPhone,
		Date:             date,
		Time:             d.SlotTime,
		ConsultationType: booking.ConsultationType(d.ConsultationType),
		Status:           booking.Status(d.Status),
		Notes:            d.Notes,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}, nil
}

func (s *Store) findBookings(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]booking.Booking, error) {
	cur, err := s.db.Collection(colBookings).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find bookings: %w", err)
	}
	var docs []bookingDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode bookings: %w", err)
	}

	result := make([]booking.Booking, 0, len(docs))
	for _, d := range docs {
		b, err := d.model()
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, nil
}

func (s *Store) ListBookingsForDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]booking.Booking, error) {
	return s.findBookings(ctx, bson.M{
		"doctor_id": doctorID.String(),
		"slot_date": date.Format(booking.DateLayout),
		"status":    bson.M{"$ne": string(booking.StatusCancelled)},
	}, options.Find().SetSort(bson.D{{Key: "slot_time", Value: 1}}))
}

func (s *Store) CreateBooking(ctx context.Context, b booking.Booking) (*booking.Booking, error) {
	n, err := s.db.Collection(colDoctors).CountDocuments(ctx, bson.M{"_id": b.DoctorID.String()})
	if err != nil {
		return nil, fmt.Errorf("count doctors: %w", err)
	}
	if n == 0 {
		return nil, booking.ErrDoctorNotFound
	}

	_, err = s.db.Collection(colBookings).InsertOne(ctx, bookingDoc{
		ID:               b.ID.String(),
		DoctorID:         b.DoctorID.String(),
		PatientName:      b.PatientName,
		PatientEmail:     b.PatientEmail,
		PatientPhone:     b.PatientPhone,
		SlotDate:         b.DateString(),
		SlotTime:         b.Time,
		ConsultationType: string(b.ConsultationType),
		Status:           string(b.Status),
		Active:           b.Status.Active(),
		Notes:            b.Notes,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, booking.ErrSlotConflict
		}
		return nil, fmt.Errorf("insert booking: %w", err)
	}
	return s.GetBookingByID(ctx, b.ID)
}

func (s *Store) GetBookingByID(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	var doc bookingDoc
	err := s.db.Collection(colBookings).FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, err
	}
	b, err := doc.model()
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) ListBookings(ctx context.Context, f booking.BookingFilter) ([]booking.Booking, error) {
	filter := bson.M{}
	if f.Status != nil {
		filter["status"] = string(*f.Status)
	}
	if f.DoctorID != nil {
		filter["doctor_id"] = f.DoctorID.String()
	}

	opts := options.Find().
		SetSort(bson.D{
			{Key: "slot_date", Value: -1},
			{Key: "slot_time", Value: -1},
			{Key: "created_at", Value: -1},
		}).
		SetSkip(int64(f.Offset))
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	return s.findBookings(ctx, filter, opts)
}

func (s *Store) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to booking.Status) (*booking.Booking, error) {
	var doc bookingDoc
	err := s.db.Collection(colBookings).FindOneAndUpdate(ctx,
		bson.M{"_id": id.String(), "status": string(from)},
		bson.M{"$set": bson.M{
			"status":     string(to),
			"active":     to.Active(),
			"updated_at": time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, booking.ErrBookingNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, booking.ErrSlotConflict
		}
		return nil, fmt.Errorf("update booking status: %w", err)
	}

	b, err := doc.model()
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) FindConfirmedBefore(ctx context.Context, date time.Time) ([]booking.Booking, error) {
	return s.findBookings(ctx, bson.M{
		"status":    string(booking.StatusConfirmed),
		"slot_date": bson.M{"$lt": date.Format(booking.DateLayout)},
	}, options.Find().SetSort(bson.D{{Key: "slot_date", Value: 1}, {Key: "slot_time", Value: 1}}))
}

func (s *Store) InsertEvent(ctx context.Context, ev booking.EventLog) error {
	doc := eventDoc{
		EventType: ev.EventType,
		Payload:   string(ev.Payload),
		CreatedAt: ev.CreatedAt,
	}
	if ev.BookingID != nil {
		id := ev.BookingID.String()
		doc.BookingID = &id
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	if _, err := s.db.Collection(colEvents).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert booking event: %w", err)
	}
	return nil
}
