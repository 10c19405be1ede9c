package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"ticketing/db"
	"ticketing/entity"
)

type fixtures struct {
	catalog *db.CatalogRepository
	users   *db.UsersRepository
}

func newFixtures(dbConn *sqlx.DB) fixtures {
	return fixtures{
		catalog: db.NewCatalogRepository(dbConn),
		users:   db.NewUsersRepository(dbConn),
	}
}

func (f fixtures) user(t *testing.T) entity.User {
	t.Helper()

	id := uuid.NewString()
	user := entity.User{ID: id, Email: id + "@example.com", Name: "User " + id[:8]}
	require.NoError(t, f.users.CreateUser(context.Background(), user))

	return user
}

func (f fixtures) currency(t *testing.T) entity.Currency {
	t.Helper()

	// codes are unique, so every test gets its own three letter code
	currency := entity.Currency{ID: uuid.NewString(), Code: uuid.NewString()[:3]}
	require.NoError(t, f.catalog.CreateCurrency(context.Background(), currency))

	return currency
}

func (f fixtures) event(t *testing.T) entity.Event {
	t.Helper()

	event := entity.Event{
		ID:            uuid.NewString(),
		Name:          "Conference",
		StartDateTime: time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second),
		IsActive:      true,
	}
	require.NoError(t, f.catalog.CreateEvent(context.Background(), event))

	return event
}

func (f fixtures) freeTicket(t *testing.T, eventID string, quantity, perUser *int) entity.TicketTemplate {
	t.Helper()

	template := entity.TicketTemplate{
		ID:                uuid.NewString(),
		EventID:           eventID,
		Name:              "General",
		IsFree:            true,
		Quantity:          quantity,
		MaxTicketsPerUser: perUser,
	}
	require.NoError(t, f.catalog.CreateTicketTemplate(context.Background(), template))

	return template
}

func (f fixtures) addon(t *testing.T, eventID string, stock *int, templateIDs ...string) entity.Addon {
	t.Helper()

	addon := entity.Addon{
		ID:         uuid.NewString(),
		EventID:    eventID,
		Name:       "Lunch",
		IsFree:     true,
		TotalStock: stock,
		Tickets: lo.Map(templateIDs, func(id string, i int) entity.AddonTicket {
			return entity.AddonTicket{TicketTemplateID: id, OrderDisplay: i}
		}),
	}
	require.NoError(t, f.catalog.CreateAddon(context.Background(), addon))

	return addon
}
