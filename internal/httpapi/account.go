package httpapi

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"brokerage-gateway/internal/brokerapi"
	"brokerage-gateway/internal/ipo"
	"brokerage-gateway/internal/tradereport"
)

// getSession returns the signed-in bootstrap. With a Validator the backend session is checked first.
func (a *api) getSession(c *gin.Context) {
	sess := currentSession(c)
	if a.Validator != nil {
		res, err := a.Validator.ValidateSession(c.Request.Context(), sess.SessionID)
		if err == nil {
			err = res.Err("validate session")
		}
		if err != nil {
			a.writeError(c, err, nil)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"client_id":   sess.ClientID,
		"trading_id":  sess.TradingID,
		"customer_id": sess.CustomerID,
	})
}

func (a *api) logout(c *gin.Context) {
	if err := a.Flows.Logout(c.Request.Context(), currentSession(c).Scope); err != nil {
		a.writeError(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *api) listIPOs(c *gin.Context) {
	issues, err := a.IPO.ListOpen(c.Request.Context(), currentSession(c))
	if err != nil {
		a.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ipos": issues, "retail_cap": a.IPO.RetailCap()})
}

func (a *api) quoteIPO(c *gin.Context) {
	var in ipo.QuoteInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badBody(c, err)
		return
	}
	c.JSON(http.StatusOK, a.IPO.Quote(in))
}

type applyIPORequest struct {
	Applications []ipo.Application `json:"applications"`
}

func (a *api) applyIPO(c *gin.Context) {
	var req applyIPORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}
	outcomes, err := a.IPO.Apply(c.Request.Context(), currentSession(c), req.Applications)
	if err != nil {
		a.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": outcomes})
}

type submitBankRequest struct {
	Accounts []brokerapi.BankAccount `json:"accounts"`
	Cheques  []brokerapi.Cheque      `json:"cheques"`
}

func (a *api) submitBank(c *gin.Context) {
	var req submitBankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}
	verified, err := a.Banks.Submit(c.Request.Context(), currentSession(c), req.Accounts, req.Cheques)
	if err != nil {
		a.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": verified})
}

func (a *api) buildReport(c *gin.Context) (tradereport.Report, bool) {
	f, err := tradereport.ParseFilter(c.Query("from"), c.Query("to"), c.Query("segment"), c.Query("symbol"), c.Query("side"))
	if err != nil {
		a.writeError(c, err, nil)
		return tradereport.Report{}, false
	}
	r, err := a.Reports.Report(c.Request.Context(), currentSession(c), f)
	if err != nil {
		a.writeError(c, err, nil)
		return tradereport.Report{}, false
	}
	return r, true
}

func (a *api) tradeReport(c *gin.Context) {
	r, ok := a.buildReport(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, r)
}

func (a *api) exportTrades(c *gin.Context) {
	format := c.DefaultQuery("format", tradereport.FormatXLSX)
	write := tradereport.WriteXLSX
	switch format {
	case tradereport.FormatXLSX:
	case tradereport.FormatPDF:
		write = tradereport.WritePDF
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "format must be xlsx or pdf"})
		return
	}
	r, ok := a.buildReport(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := write(&buf, r); err != nil {
		a.writeError(c, err, nil)
		return
	}
	a.Reports.Exported(currentSession(c), r, format)
	c.Header("Content-Disposition", `attachment; filename="`+tradereport.Filename(r, format)+`"`)
	c.Data(http.StatusOK, tradereport.ContentType(format), buf.Bytes())
}
