package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/kaanagar1/equimarket-sub000/internal/api/handlers"
	"github.com/kaanagar1/equimarket-sub000/internal/auth"
	"github.com/kaanagar1/equimarket-sub000/internal/models"
	"github.com/kaanagar1/equimarket-sub000/internal/services"
	"github.com/kaanagar1/equimarket-sub000/internal/utils"
)

func TestRestSavedSearchHandler(t *testing.T) {
	searches := new(MockSavedSearchService)
	h := handlers.NewRestSavedSearchHandler(newResponder(t, false), searches)
	r := newEngine()
	r.POST("/v1/saved-searches", authed(), h.CreateSavedSearch)
	r.GET("/v1/saved-searches", authed(), h.ListSavedSearches)
	r.PUT("/v1/saved-searches/:id", authed(), h.UpdateSavedSearch)
	r.DELETE("/v1/saved-searches/:id", authed(), h.DeleteSavedSearch)

	me, id := utils.NewSixID(), utils.NewSixID()
	token := tokenFor(t, me, auth.RoleUser)
	in := services.SavedSearchInput{Name: "Arap kısraklar", Filters: models.ListingFilter{Breed: "Arap"}, Frequency: models.FrequencyWeekly}
	saved := &models.SavedSearch{Base: models.Base{ID: id}, User: me, Name: in.Name, Filters: in.Filters, Frequency: in.Frequency}
	searches.On("Create", mock.Anything, me, in).Return(saved, nil)
	searches.On("List", mock.Anything, me).Return([]models.SavedSearch{*saved}, nil)
	searches.On("Update", mock.Anything, me, id, in).Return(nil, services.ErrNotFound("saved search not found"))
	searches.On("Delete", mock.Anything, me, id).Return(nil)

	assert.Equal(t, http.StatusCreated, perform(r, http.MethodPost, "/v1/saved-searches", token, in).Code)
	assert.Equal(t, http.StatusBadRequest, perform(r, http.MethodPost, "/v1/saved-searches", token, `{"filters":{}}`).Code)

	w := perform(r, http.MethodGet, "/v1/saved-searches", token, nil)
	var list []models.SavedSearch
	decode(t, w, &list)
	assert.Len(t, list, 1)
	assert.Equal(t, "Arap", list[0].Filters.Breed)

	assert.Equal(t, http.StatusNotFound, perform(r, http.MethodPut, "/v1/saved-searches/"+id.String(), token, in).Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodDelete, "/v1/saved-searches/"+id.String(), token, nil).Code)
	searches.AssertExpectations(t)
}
