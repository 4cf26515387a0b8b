package patient

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/ward-api/internal/handler"
	"github.com/jwalitptl/ward-api/internal/model"
	"github.com/jwalitptl/ward-api/internal/service/patient"
	"github.com/jwalitptl/ward-api/pkg/httputil"
)

type Handler struct {
	service patient.PatientService
}

func NewHandler(service patient.PatientService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/admit", h.AdmitPatient)
	r.GET("/admissions", h.ListAdmissions)
	r.POST("/treatments", h.AddTreatment)

	patients := r.Group("/patients")
	{
		patients.PUT("/discharge", h.DischargePatient)
		patients.GET("/:patient_id", h.GetPatient)
		patients.POST("/:patient_id/readmit", h.ReadmitPatient)
		patients.GET("/:patient_id/treatments", h.ListTreatments)
	}
}

func (h *Handler) AdmitPatient(c *gin.Context) {
	var req model.AdmitPatientRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	id, err := h.service.Admit(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusCreated, model.AdmitPatientResponse{
		PatientID: id,
		Message:   patient.MsgAdmitted,
	})
}

func (h *Handler) ListAdmissions(c *gin.Context) {
	admissions, err := h.service.ListCurrentAdmissions(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if admissions == nil {
		admissions = []*model.CurrentAdmission{}
	}

	httputil.RespondWithSuccess(c, http.StatusOK, admissions)
}

func (h *Handler) AddTreatment(c *gin.Context) {
	var req model.AddTreatmentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	if _, err := h.service.AddTreatment(c.Request.Context(), &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusCreated, model.MessageResponse{Message: patient.MsgTreatmentAdded})
}

func (h *Handler) DischargePatient(c *gin.Context) {
	var req model.DischargePatientRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	if _, err := h.service.Discharge(c.Request.Context(), &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, model.MessageResponse{Message: patient.MsgDischarged})
}

func (h *Handler) GetPatient(c *gin.Context) {
	id, ok := handler.PathID(c, "patient_id")
	if !ok {
		return
	}

	record, err := h.service.GetPatient(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, record)
}

func (h *Handler) ReadmitPatient(c *gin.Context) {
	id, ok := handler.PathID(c, "patient_id")
	if !ok {
		return
	}

	var req model.ReadmitPatientRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	admission, err := h.service.Readmit(c.Request.Context(), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusCreated, model.ReadmitPatientResponse{
		AdmissionID: admission.ID,
		Message:     patient.MsgReadmitted,
	})
}

func (h *Handler) ListTreatments(c *gin.Context) {
	id, ok := handler.PathID(c, "patient_id")
	if !ok {
		return
	}

	treatments, err := h.service.ListTreatments(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if treatments == nil {
		treatments = []*model.Treatment{}
	}

	httputil.RespondWithSuccess(c, http.StatusOK, treatments)
}
