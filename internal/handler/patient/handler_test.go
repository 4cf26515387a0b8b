package patient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ward-api/internal/model"
	"github.com/jwalitptl/ward-api/internal/service/patient"
	"github.com/jwalitptl/ward-api/pkg/errors"
	"github.com/jwalitptl/ward-api/pkg/httputil"
)

type mockService struct {
	mock.Mock
}

var _ patient.PatientService = (*mockService)(nil)

func (m *mockService) Admit(ctx context.Context, req *model.AdmitPatientRequest) (int64, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockService) ListCurrentAdmissions(ctx context.Context) ([]*model.CurrentAdmission, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]*model.CurrentAdmission)
	return list, args.Error(1)
}

func (m *mockService) AddTreatment(ctx context.Context, req *model.AddTreatmentRequest) (*model.Treatment, error) {
	args := m.Called(ctx, req)
	tr, _ := args.Get(0).(*model.Treatment)
	return tr, args.Error(1)
}

func (m *mockService) Discharge(ctx context.Context, req *model.DischargePatientRequest) (*model.Admission, error) {
	args := m.Called(ctx, req)
	a, _ := args.Get(0).(*model.Admission)
	return a, args.Error(1)
}

func (m *mockService) GetPatient(ctx context.Context, id int64) (*model.PatientRecord, error) {
	args := m.Called(ctx, id)
	rec, _ := args.Get(0).(*model.PatientRecord)
	return rec, args.Error(1)
}

func (m *mockService) Readmit(ctx context.Context, id int64, req *model.ReadmitPatientRequest) (*model.Admission, error) {
	args := m.Called(ctx, id, req)
	a, _ := args.Get(0).(*model.Admission)
	return a, args.Error(1)
}

func (m *mockService) ListTreatments(ctx context.Context, id int64) ([]*model.Treatment, error) {
	args := m.Called(ctx, id)
	list, _ := args.Get(0).([]*model.Treatment)
	return list, args.Error(1)
}

func setup(svc *mockService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/v1"))
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAdmitPatient(t *testing.T) {
	svc := &mockService{}
	svc.On("Admit", mock.Anything, &model.AdmitPatientRequest{
		PatientName: "John", DOB: "1990-01-01", Gender: "M", AdmitDate: "2023-03-26",
	}).Return(int64(1), nil)

	w := do(setup(svc), http.MethodPost, "/v1/admit",
		`{"patient_name":"John","dob":"1990-01-01","gender":"M","admit_date":"2023-03-26"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"patient_id":1,"message":"Patient admitted successfully"}`, w.Body.String())
	svc.AssertExpectations(t)
}

func TestAdmitPatient_FormatError(t *testing.T) {
	svc := &mockService{}
	svc.On("Admit", mock.Anything, mock.Anything).Return(int64(0), errors.Format("admit_date", nil))

	w := do(setup(svc), http.MethodPost, "/v1/admit",
		`{"patient_name":"John","dob":"1990-01-01","gender":"M","admit_date":"2024-13-40"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := errorBody(t, w)
	assert.Equal(t, "format", body.Code)
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "admit_date", body.Fields[0].Field)
}

func TestAdmitPatient_BadBody(t *testing.T) {
	svc := &mockService{}
	r := setup(svc)

	w := do(r, http.MethodPost, "/v1/admit", `{"patient_name":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", errorBody(t, w).Code)

	w = do(r, http.MethodPost, "/v1/admit", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "request body is required", errorBody(t, w).Error)

	svc.AssertNotCalled(t, "Admit", mock.Anything, mock.Anything)
}

func TestListAdmissions(t *testing.T) {
	svc := &mockService{}
	svc.On("ListCurrentAdmissions", mock.Anything).Return([]*model.CurrentAdmission{{
		PatientID:   1,
		PatientName: "John",
		DOB:         model.NewDate(1990, 1, 1),
		Gender:      "M",
		AdmitDate:   model.NewDate(2023, 3, 26),
	}}, nil)

	w := do(setup(svc), http.MethodGet, "/v1/admissions", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"patient_id":1,"patient_name":"John","dob":"1990-01-01","gender":"M","admit_date":"2023-03-26"}]`, w.Body.String())
}

func TestListAdmissions_Empty(t *testing.T) {
	svc := &mockService{}
	svc.On("ListCurrentAdmissions", mock.Anything).Return(nil, nil)

	w := do(setup(svc), http.MethodGet, "/v1/admissions", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}

func TestListAdmissions_StorageError(t *testing.T) {
	svc := &mockService{}
	svc.On("ListCurrentAdmissions", mock.Anything).Return(nil, errors.Storage(assert.AnError))

	w := do(setup(svc), http.MethodGet, "/v1/admissions", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "database error", errorBody(t, w).Error)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}

func TestAddTreatment(t *testing.T) {
	svc := &mockService{}
	svc.On("AddTreatment", mock.Anything, &model.AddTreatmentRequest{
		PatientID: 1, TreatmentName: "X-ray", TreatmentDate: "2023-03-27",
	}).Return(&model.Treatment{ID: 3}, nil)

	w := do(setup(svc), http.MethodPost, "/v1/treatments",
		`{"patient_id":1,"treatment_name":"X-ray","treatment_date":"2023-03-27"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"message":"Treatment added successfully"}`, w.Body.String())
}

func TestAddTreatment_NotFound(t *testing.T) {
	svc := &mockService{}
	svc.On("AddTreatment", mock.Anything, mock.Anything).Return(nil, errors.NotFound(patient.MsgRecordNotFound))

	w := do(setup(svc), http.MethodPost, "/v1/treatments",
		`{"patient_id":9999,"treatment_name":"X-ray","treatment_date":"2023-03-27"}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Patient record not found", errorBody(t, w).Error)
}

func TestAddTreatment_WrongType(t *testing.T) {
	svc := &mockService{}

	w := do(setup(svc), http.MethodPost, "/v1/treatments",
		`{"patient_id":"one","treatment_name":"X-ray","treatment_date":"2023-03-27"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := errorBody(t, w)
	assert.Equal(t, "format", body.Code)
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "patient_id", body.Fields[0].Field)
	assert.Equal(t, "must be an integer", body.Fields[0].Message)
}

func TestDischargePatient(t *testing.T) {
	svc := &mockService{}
	svc.On("Discharge", mock.Anything, &model.DischargePatientRequest{
		PatientID: 1, DischargeDate: "2023-03-28", Diagnosis: "Fractured leg",
	}).Return(&model.Admission{ID: 1}, nil)

	w := do(setup(svc), http.MethodPut, "/v1/patients/discharge",
		`{"patient_id":1,"discharge_date":"2023-03-28","diagnosis":"Fractured leg"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Patient discharged successfully"}`, w.Body.String())
}

func TestDischargePatient_NotAdmitted(t *testing.T) {
	svc := &mockService{}
	svc.On("Discharge", mock.Anything, mock.Anything).Return(nil, errors.NotFound(patient.MsgNotAdmitted))

	w := do(setup(svc), http.MethodPut, "/v1/patients/discharge",
		`{"patient_id":1,"discharge_date":"2023-03-28","diagnosis":"Flu"}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Patient not currently admitted", errorBody(t, w).Error)
}

func TestGetPatient(t *testing.T) {
	svc := &mockService{}
	diagnosis := "Fractured leg"
	discharged := model.NewDate(2023, 3, 28)
	svc.On("GetPatient", mock.Anything, int64(1)).Return(&model.PatientRecord{
		Patient: model.Patient{
			ID:            1,
			Name:          "John",
			DOB:           model.NewDate(1990, 1, 1),
			Gender:        "M",
			AdmitDate:     model.NewDate(2023, 3, 26),
			DischargeDate: &discharged,
		},
		Admissions: []*model.Admission{{
			ID:            1,
			PatientID:     1,
			AdmissionDate: model.NewDate(2023, 3, 26),
			DischargeDate: &discharged,
			Diagnosis:     &diagnosis,
		}},
	}, nil)

	w := do(setup(svc), http.MethodGet, "/v1/patients/1", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"id": 1,
		"name": "John",
		"dob": "1990-01-01",
		"gender": "M",
		"admit_date": "2023-03-26",
		"discharge_date": "2023-03-28",
		"currently_admitted": false,
		"admissions": [{
			"id": 1,
			"admission_date": "2023-03-26",
			"discharge_date": "2023-03-28",
			"diagnosis": "Fractured leg"
		}]
	}`, w.Body.String())
}

func TestGetPatient_BadID(t *testing.T) {
	svc := &mockService{}
	r := setup(svc)

	for _, path := range []string{"/v1/patients/abc", "/v1/patients/0", "/v1/patients/-3"} {
		w := do(r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
	svc.AssertNotCalled(t, "GetPatient", mock.Anything, mock.Anything)
}

func TestGetPatient_NotFound(t *testing.T) {
	svc := &mockService{}
	svc.On("GetPatient", mock.Anything, int64(42)).Return(nil, errors.NotFound(patient.MsgPatientNotFound))

	w := do(setup(svc), http.MethodGet, "/v1/patients/42", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Patient not found", errorBody(t, w).Error)
}

func TestReadmitPatient(t *testing.T) {
	svc := &mockService{}
	svc.On("Readmit", mock.Anything, int64(1), &model.ReadmitPatientRequest{AdmissionDate: "2024-05-01"}).
		Return(&model.Admission{ID: 8}, nil)
	svc.On("Readmit", mock.Anything, int64(2), mock.Anything).
		Return(nil, errors.Conflict(patient.MsgAlreadyAdmitted))
	r := setup(svc)

	w := do(r, http.MethodPost, "/v1/patients/1/readmit", `{"admission_date":"2024-05-01"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"admission_id":8,"message":"Patient readmitted successfully"}`, w.Body.String())

	w = do(r, http.MethodPost, "/v1/patients/2/readmit", `{"admission_date":"2024-05-01"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", errorBody(t, w).Code)
}

func TestListTreatments(t *testing.T) {
	svc := &mockService{}
	svc.On("ListTreatments", mock.Anything, int64(1)).Return([]*model.Treatment{{
		ID: 2, PatientID: 1, TreatmentName: "X-ray", TreatmentDate: model.NewDate(2023, 3, 27),
	}}, nil)

	w := do(setup(svc), http.MethodGet, "/v1/patients/1/treatments", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":2,"patient_id":1,"treatment_name":"X-ray","treatment_date":"2023-03-27"}]`, w.Body.String())
}
