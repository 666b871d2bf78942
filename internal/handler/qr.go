package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/Renzo-Juli-M/proyecto-cero/internal/attendance"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// QRHandler exposes attendance QR issuance and redemption.
type QRHandler struct {
	DB  *gorm.DB
	Svc *attendance.Service
}

func NewQRHandler(db *gorm.DB, svc *attendance.Service) *QRHandler {
	return &QRHandler{DB: db, Svc: svc}
}

func issuedResponse(tok *attendance.IssuedToken) util.Response {
	return util.Response{
		"qr_token":          tok.Token,
		"article_id":        tok.ArticleID,
		"article_title":     tok.ArticleTitle,
		"issued_at":         tok.IssuedAt.Format(time.RFC3339),
		"expires_at":        tok.ExpiresAt.Format(time.RFC3339),
		"remaining_minutes": tok.RemainingMinutes,
		"reused":            tok.Reused,
	}
}

func writeIssued(c *gin.Context, tok *attendance.IssuedToken) {
	if tok.Reused {
		resp := issuedResponse(tok)
		resp["message"] = "Ya tienes un QR activo"
		util.Success(c, resp)
		return
	}
	resp := issuedResponse(tok)
	resp["message"] = "QR generado exitosamente"
	util.Created(c, resp)
}

// IssueToken POST /api/student/articles/:id/qr
func (h *QRHandler) IssueToken(c *gin.Context) {
	student, ok := currentStudent(c, h.DB)
	if !ok {
		return
	}
	articleID, ok := paramID(c, "id")
	if !ok {
		return
	}

	tok, err := h.Svc.IssueToken(c.Request.Context(), articleID, student.ID)
	if err != nil {
		writeAttendanceError(c, err)
		return
	}
	writeIssued(c, tok)
}

// GenerateQR POST /api/student/generate-qr issues for the speaker's own article.
func (h *QRHandler) GenerateQR(c *gin.Context) {
	student, ok := currentStudent(c, h.DB)
	if !ok {
		return
	}

	tok, err := h.Svc.IssueForSpeaker(c.Request.Context(), student.ID)
	if err != nil {
		writeAttendanceError(c, err)
		return
	}
	writeIssued(c, tok)
}

func statusResponse(st *attendance.TokenStatus) util.Response {
	resp := util.Response{
		"has_active_qr": st.Active,
		"article_id":    st.ArticleID,
		"article_title": st.ArticleTitle,
	}
	if st.Active {
		resp["qr_token"] = st.Token
		resp["expires_at"] = st.ExpiresAt.Format(time.RFC3339)
		resp["remaining_minutes"] = st.RemainingMinutes
	}
	return resp
}

// Status GET /api/student/articles/:id/qr-status
func (h *QRHandler) Status(c *gin.Context) {
	student, ok := currentStudent(c, h.DB)
	if !ok {
		return
	}
	articleID, ok := paramID(c, "id")
	if !ok {
		return
	}

	st, err := h.Svc.TokenStatus(c.Request.Context(), articleID, student.ID)
	if err != nil {
		writeAttendanceError(c, err)
		return
	}
	util.Success(c, statusResponse(st))
}

// MyStatus GET /api/student/qr-status
func (h *QRHandler) MyStatus(c *gin.Context) {
	student, ok := currentStudent(c, h.DB)
	if !ok {
		return
	}

	st, err := h.Svc.SpeakerTokenStatus(c.Request.Context(), student.ID)
	if err != nil {
		writeAttendanceError(c, err)
		return
	}
	util.Success(c, statusResponse(st))
}

type scanReq struct {
	QRToken string `json:"qr_token" binding:"required"`
}

// Scan POST /api/student/scan-qr redeems a scanned token.
func (h *QRHandler) Scan(c *gin.Context) {
	student, ok := currentStudent(c, h.DB)
	if !ok {
		return
	}

	var req scanReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.QRToken) == "" {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "qr_token es obligatorio")
		return
	}

	rec, err := h.Svc.RedeemToken(c.Request.Context(), req.QRToken, student.ID)
	if err != nil {
		writeAttendanceError(c, err)
		return
	}

	util.Created(c, util.Response{
		"message":       "Asistencia registrada exitosamente",
		"attendance_id": rec.AttendanceID,
		"article": gin.H{
			"id":    rec.ArticleID,
			"title": rec.ArticleTitle,
			"type":  rec.ArticleType,
		},
		"ponente": gin.H{
			"full_name": rec.SpeakerName,
		},
		"attended_at":     rec.ScannedAt.Format(dateTimeLayout),
		"total_attendees": rec.TotalAttendees,
	})
}

// MyAttendees GET /api/student/my-attendees lists who attended the
// speaker's article.
func (h *QRHandler) MyAttendees(c *gin.Context) {
	student, ok := currentStudent(c, h.DB)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	article, err := h.Svc.SpeakerArticle(ctx, student.ID)
	if err != nil {
		writeAttendanceError(c, err)
		return
	}
	rows, err := h.Svc.Attendees(ctx, article.ID)
	if err != nil {
		writeAttendanceError(c, err)
		return
	}

	attendees := make([]gin.H, 0, len(rows))
	for _, a := range rows {
		attendees = append(attendees, gin.H{
			"id": a.ID,
			"student": gin.H{
				"full_name":    a.Student.FullName(),
				"student_code": a.Student.StudentCode,
				"dni":          a.Student.DNI,
			},
			"attended_at": a.ScannedAt.Format(dateTimeLayout),
		})
	}

	util.Success(c, util.Response{
		"total_attendees": len(attendees),
		"attendees":       attendees,
		"pusher_channel":  attendance.ArticleChannel(article.ID),
	})
}
