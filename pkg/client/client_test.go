package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", WithHTTPClient(srv.Client()))
}

func TestListPatients(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/patients", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		io.WriteString(w, `{"success":true,"data":[{"id":2,"full_name":"Jane Doe","email":"jane@gmail.com","document_photo_url":"/storage/documents/a.jpg","created_at":"2025-01-01T10:00:00Z"}]}`)
	})

	patients, err := c.ListPatients(context.Background())
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.Equal(t, int64(2), patients[0].ID)
	assert.Equal(t, "Jane Doe", patients[0].FullName)
	assert.Equal(t, 2025, patients[0].CreatedAt.Year())
	assert.True(t, strings.HasSuffix(c.PhotoURL(&patients[0]), "/storage/documents/a.jpg"))
	assert.False(t, strings.Contains(c.PhotoURL(&patients[0]), "/api/v1"))
}

func TestCreatePatient_SendsMultipart(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "John Doe", r.FormValue("full_name"))
		assert.Equal(t, "+598", r.FormValue("phone_country_code"))

		file, header, err := r.FormFile("document_photo")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		content, _ := io.ReadAll(file)
		assert.Equal(t, "id.jpg", header.Filename)
		assert.Equal(t, "photo-bytes", string(content))

		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"success":true,"message":"Patient registered successfully","data":{"id":1,"full_name":"John Doe"}}`)
	})

	patient, err := c.CreatePatient(context.Background(), CreatePatientInput{
		FullName:         "John Doe",
		Email:            "john@gmail.com",
		PhoneCountryCode: "+598",
		PhoneNumber:      "099123456",
		PhotoName:        "id.jpg",
		Photo:            strings.NewReader("photo-bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), patient.ID)
}

func TestCreatePatient_ValidationError(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"success":false,"message":"Validation failed","errors":{"email":["Only @gmail.com email addresses are accepted"]}}`)
	})

	_, err := c.CreatePatient(context.Background(), CreatePatientInput{Email: "john@yahoo.com"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, []string{"Only @gmail.com email addresses are accepted"}, apiErr.Errors["email"])
	assert.Contains(t, err.Error(), "email: Only @gmail.com email addresses are accepted")
}

func TestGetAndDelete_NotFound(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/patients/7", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"success":false,"message":"Patient not found"}`)
	})

	_, err := c.GetPatient(context.Background(), 7)
	assert.True(t, IsNotFound(err))

	err = c.DeletePatient(context.Background(), 7)
	assert.True(t, IsNotFound(err))
	assert.EqualError(t, err, "404 Patient not found")
}

func TestServerErrorCarriesDetail(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"success":false,"message":"Failed to delete patient","error":"connection refused"}`)
	})

	err := c.DeletePatient(context.Background(), 1)
	assert.EqualError(t, err, "500 Failed to delete patient: connection refused")
}

func TestRules(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/patients/rules", r.URL.Path)
		io.WriteString(w, `{"success":true,"data":{"fields":[{"field":"full_name","pattern":"^[A-Za-z\\s]+$","max_length":255}],"document_photo":{"field":"document_photo","max_bytes":10485760}}}`)
	})

	table, err := c.Rules(context.Background())
	require.NoError(t, err)
	require.Len(t, table.Fields, 1)
	assert.Equal(t, `^[A-Za-z\s]+$`, table.Fields[0].Pattern)
	assert.Equal(t, int64(10<<20), table.DocumentPhoto.MaxBytes)
}

func TestNonJSONResponse(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := c.ListPatients(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}
