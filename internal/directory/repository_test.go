package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDoctor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT id, name, specialty`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "specialty"}).
			AddRow(id, "Dr. Asha Rao", "Cardiology"))

	repo := NewRepository(mock)
	doc, err := repo.GetDoctor(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Asha Rao", doc.Name)
	assert.Equal(t, "Cardiology", doc.Specialty)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDoctorNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT id, name, specialty`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "specialty"}))

	repo := NewRepository(mock)
	_, err = repo.GetDoctor(context.Background(), id)
	if !errors.Is(err, ErrDoctorNotFound) {
		t.Fatalf("expected ErrDoctorNotFound, got %v", err)
	}
}

func TestTemplateSlotsOrdered(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT DISTINCT slot_time`).
		WithArgs(int(time.Friday)).
		WillReturnRows(pgxmock.NewRows([]string{"slot_time"}).
			AddRow("09:00").
			AddRow("10:00").
			AddRow("14:30"))

	repo := NewRepository(mock)
	slots, err := repo.TemplateSlots(context.Background(), time.Friday)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "10:00", "14:30"}, slots)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDoctorsForSlot(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id1, id2 := uuid.New(), uuid.New()
	mock.ExpectQuery(`SELECT d.id, d.name, d.specialty`).
		WithArgs(int(time.Monday), "09:00").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "specialty"}).
			AddRow(id1, "Dr. Asha Rao", "Cardiology").
			AddRow(id2, "Dr. Ben Okafor", "General Medicine"))

	repo := NewRepository(mock)
	doctors, err := repo.DoctorsForSlot(context.Background(), time.Monday, "09:00")
	require.NoError(t, err)
	require.Len(t, doctors, 2)
	assert.Equal(t, "Dr. Asha Rao", doctors[0].Name)
	assert.Equal(t, id2, doctors[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
