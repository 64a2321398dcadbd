package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"patient-registration/internal/delivery/dto"
	"patient-registration/internal/rules"
	"patient-registration/internal/usecase"
	"patient-registration/pkg/response"

	"github.com/gorilla/mux"
)

// formOverhead is the allowance for the text fields and multipart framing on
// top of the photo parts.
const formOverhead = 1 << 20

// maxFieldBytes caps a single text field of the registration form.
const maxFieldBytes = 64 << 10

// oversizeFactor is how far past the upload limit a body may run and still
// be read to the end, so the other fields are validated too.
const oversizeFactor = 4

var errFieldTooLarge = errors.New("form field too large")

type PatientHandler struct {
	patientUsecase usecase.PatientUsecase
	maxUploadBytes int64
	maxBodyBytes   int64
}

func NewPatientHandler(patientUsecase usecase.PatientUsecase, maxUploadBytes int64) *PatientHandler {
	return &PatientHandler{
		patientUsecase: patientUsecase,
		maxUploadBytes: maxUploadBytes,
		maxBodyBytes:   oversizeFactor*maxUploadBytes + formOverhead,
	}
}

func (h *PatientHandler) GetAllPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.patientUsecase.GetAllPatients(r.Context())
	if err != nil {
		response.InternalServerError(w, "Failed to retrieve patients", err)
		return
	}

	response.Success(w, http.StatusOK, "", patients)
}

func (h *PatientHandler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	req, err := h.parseCreateRequest(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.ValidationError(w, map[string]string{
				rules.FieldDocumentPhoto: rules.Message(rules.FieldDocumentPhoto, rules.RuleSize),
			})
			return
		}
		response.BadRequest(w, "Invalid request body")
		return
	}

	patient, err := h.patientUsecase.CreatePatient(r.Context(), req)
	if err != nil {
		var validationErr *usecase.ValidationError
		if errors.As(err, &validationErr) {
			response.ValidationError(w, validationErr.Fields)
			return
		}
		response.InternalServerError(w, "Failed to register patient", err)
		return
	}

	response.Success(w, http.StatusCreated, "Patient registered successfully", patient)
}

func (h *PatientHandler) GetPatient(w http.ResponseWriter, r *http.Request) {
	id, ok := patientID(r)
	if !ok {
		response.NotFound(w, "Patient not found")
		return
	}

	patient, err := h.patientUsecase.GetPatient(r.Context(), id)
	if err != nil {
		if errors.Is(err, usecase.ErrPatientNotFound) {
			response.NotFound(w, "Patient not found")
			return
		}
		response.InternalServerError(w, "Failed to retrieve patient", err)
		return
	}

	response.Success(w, http.StatusOK, "", patient)
}

func (h *PatientHandler) DeletePatient(w http.ResponseWriter, r *http.Request) {
	id, ok := patientID(r)
	if !ok {
		response.NotFound(w, "Patient not found")
		return
	}

	err := h.patientUsecase.DeletePatient(r.Context(), id)
	if err != nil {
		if errors.Is(err, usecase.ErrPatientNotFound) {
			response.NotFound(w, "Patient not found")
			return
		}
		response.InternalServerError(w, "Failed to delete patient", err)
		return
	}

	response.Success(w, http.StatusOK, "Patient deleted successfully", nil)
}

// patientID parses the {id} path variable. Anything that is not a positive
// integer cannot name a patient.
func patientID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseCreateRequest streams the registration form. An oversized photo is
// measured and dropped rather than failing the parse, so every field still
// reaches validation. A body that is not multipart is read as a plain form
// and its missing photo is reported by the rules.
func (h *PatientHandler) parseCreateRequest(r *http.Request) (*dto.CreatePatientRequest, error) {
	reader, err := r.MultipartReader()
	if errors.Is(err, http.ErrNotMultipart) {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return formRequest(r.Form, nil), nil
	}
	if err != nil {
		return nil, err
	}

	values := url.Values{}
	var photo *dto.DocumentPhoto
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch {
		case part.FormName() == rules.FieldDocumentPhoto && part.FileName() != "" && photo == nil:
			photo, err = h.readPhoto(part)
		case part.FileName() != "":
			_, err = io.Copy(io.Discard, part)
		case part.FormName() != "":
			var value string
			value, err = readField(part)
			values.Add(part.FormName(), value)
		}
		part.Close()
		if err != nil {
			return nil, err
		}
	}

	return formRequest(values, photo), nil
}

func formRequest(values url.Values, photo *dto.DocumentPhoto) *dto.CreatePatientRequest {
	return &dto.CreatePatientRequest{
		FullName:         values.Get(rules.FieldFullName),
		Email:            values.Get(rules.FieldEmail),
		PhoneCountryCode: values.Get(rules.FieldPhoneCountryCode),
		PhoneNumber:      values.Get(rules.FieldPhoneNumber),
		DocumentPhoto:    photo,
	}
}

func readField(part *multipart.Part) (string, error) {
	b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", err
	}
	if len(b) > maxFieldBytes {
		return "", fmt.Errorf("%s: %w", part.FormName(), errFieldTooLarge)
	}
	return string(b), nil
}

// readPhoto buffers the photo up to one byte past the upload limit and
// counts the remainder, so Size is the real upload size either way. The
// content type is sniffed from the leading bytes.
func (h *PatientHandler) readPhoto(part *multipart.Part) (*dto.DocumentPhoto, error) {
	var buf bytes.Buffer
	size, err := io.Copy(&buf, io.LimitReader(part, h.maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rules.FieldDocumentPhoto, err)
	}
	if size > h.maxUploadBytes {
		rest, err := io.Copy(io.Discard, part)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rules.FieldDocumentPhoto, err)
		}
		size += rest
	}

	sniffed, err := rules.SniffPhoto(part.FileName(), size, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, err
	}

	return &dto.DocumentPhoto{
		Filename:    sniffed.Filename,
		Size:        sniffed.Size,
		ContentType: sniffed.ContentType,
		Content:     bytes.NewReader(buf.Bytes()),
	}, nil
}
