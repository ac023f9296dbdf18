package api

import (
	"net/http"
	"strconv"
	"strings"

	"glowlogy/cmd/internal/apperr"
	"glowlogy/cmd/internal/catalog"
)

type servicesResponse struct {
	Services []catalog.Service `json:"services"`
}

type locationsResponse struct {
	Locations []catalog.Location `json:"locations"`
}

type categoriesResponse struct {
	Categories []catalog.Category `json:"categories"`
}

type citiesResponse struct {
	Cities []string `json:"cities"`
}

func (h *Handler) handleServices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeAppError(w, "api.services", apperr.Invalid("limit", "must be a positive number"))
			return
		}
		limit = n
	}
	popular, _ := strconv.ParseBool(q.Get("popular"))
	fresh, _ := strconv.ParseBool(q.Get("fresh"))

	var (
		list []catalog.Service
		err  error
	)
	if popular {
		list, err = h.catalog.PopularServices(r.Context(), limit)
	} else {
		list, err = h.catalog.ListServices(r.Context(), catalog.ServiceFilter{
			Category: strings.TrimSpace(q.Get("category")),
			Limit:    limit,
			UseCache: !fresh,
		})
	}
	if err != nil {
		h.writeAppError(w, "api.services", err)
		return
	}
	writeJSON(w, http.StatusOK, servicesResponse{Services: nonNil(list)})
}

func (h *Handler) handleService(w http.ResponseWriter, r *http.Request) {
	s, err := h.catalog.ServiceByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeAppError(w, "api.service", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, categoriesResponse{Categories: h.catalog.Categories()})
}

func (h *Handler) handleLocations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		list []catalog.Location
		err  error
	)
	if search := strings.TrimSpace(q.Get("q")); search != "" {
		list, err = h.catalog.SearchLocations(r.Context(), search)
	} else {
		f := catalog.LocationFilter{City: strings.TrimSpace(q.Get("city")), UseCache: true}
		if raw := strings.TrimSpace(q.Get("featured")); raw != "" {
			featured, perr := strconv.ParseBool(raw)
			if perr != nil {
				h.writeAppError(w, "api.locations", apperr.Invalid("featured", "must be true or false"))
				return
			}
			f.Featured = &featured
		}
		if fresh, _ := strconv.ParseBool(q.Get("fresh")); fresh {
			f.UseCache = false
		}
		list, err = h.catalog.ListLocations(r.Context(), f)
	}
	if err != nil {
		h.writeAppError(w, "api.locations", err)
		return
	}
	writeJSON(w, http.StatusOK, locationsResponse{Locations: nonNil(list)})
}

func (h *Handler) handleLocation(w http.ResponseWriter, r *http.Request) {
	l, err := h.catalog.LocationByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeAppError(w, "api.location", err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handler) handleCities(w http.ResponseWriter, r *http.Request) {
	cities, err := h.catalog.Cities(r.Context())
	if err != nil {
		h.writeAppError(w, "api.cities", err)
		return
	}
	writeJSON(w, http.StatusOK, citiesResponse{Cities: nonNil(cities)})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
