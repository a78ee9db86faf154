//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stafflink/shift-digest/internal/digest"
	"github.com/stafflink/shift-digest/internal/domain"
	"github.com/stafflink/shift-digest/internal/testutil"
)

func createAgency(t *testing.T, name string) domain.Agency {
	t.Helper()

	resp := adminClient().Post(t, "/api/v1/agencies", map[string]interface{}{
		"name":          name,
		"contact_email": "office@example.com",
		"contact_phone": "+44 20 7946 0000",
	})
	testutil.RequireStatus(t, resp, http.StatusCreated)

	var agency domain.Agency
	testutil.DecodeData(t, resp, &agency)
	require.NotEmpty(t, agency.ID)
	return agency
}

func TestAgencyCRUD(t *testing.T) {
	resetQueue(t)
	client := adminClient()

	created := createAgency(t, "Northern Care Staffing")
	assert.Equal(t, "Northern Care Staffing", created.Name)
	assert.Equal(t, "office@example.com", created.ContactEmail)

	resp := client.Get(t, "/api/v1/agencies/"+created.ID)
	testutil.RequireStatus(t, resp, http.StatusOK)

	var fetched domain.Agency
	testutil.DecodeData(t, resp, &fetched)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, created.Name, fetched.Name)

	resp = client.Get(t, "/api/v1/agencies")
	testutil.RequireStatus(t, resp, http.StatusOK)

	var agencies []domain.Agency
	testutil.DecodeData(t, resp, &agencies)
	require.Len(t, agencies, 1)

	newName := "Northern Care Group"
	resp = client.Patch(t, "/api/v1/agencies/"+created.ID, map[string]interface{}{
		"name": newName,
	})
	testutil.RequireStatus(t, resp, http.StatusOK)

	var updated domain.Agency
	testutil.DecodeData(t, resp, &updated)
	assert.Equal(t, newName, updated.Name)
	assert.Equal(t, created.ContactEmail, updated.ContactEmail, "absent fields stay unchanged")
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))
}

func TestAgencyNotFound(t *testing.T) {
	resp := adminClient().Get(t, "/api/v1/agencies/" + uuid.NewString())
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAgencyValidation(t *testing.T) {
	client := adminClient()

	t.Run("missing name", func(t *testing.T) {
		resp := client.Post(t, "/api/v1/agencies", map[string]interface{}{
			"contact_email": "office@example.com",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid contact email", func(t *testing.T) {
		resp := client.Post(t, "/api/v1/agencies", map[string]interface{}{
			"name":          "Broken",
			"contact_email": "not-an-email",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAgencyBrandingInDigest(t *testing.T) {
	resetQueue(t)
	require.NoError(t, mailpitClient.DeleteAllMessages())

	agency := createAgency(t, "Harbour Medical Staffing")

	req := assignmentRequest("staff-branded", "branded@example.com")
	req["agency_id"] = agency.ID

	resp := operatorClient().Post(t, "/api/v1/queue/shift-assignments", req)
	testutil.RequireStatus(t, resp, http.StatusAccepted)
	resp.Body.Close()

	waitUntilDue()

	result := runDigest(t)
	require.Equal(t, 1, result.Results.Sent)

	messages, err := mailpitClient.WaitForMessages(1, 10*time.Second)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	msg := messages[0]
	assert.Equal(t, "Harbour Medical Staffing", msg.From.Name)
	assert.Equal(t, "1 New Shift Assigned - Harbour Medical Staffing", msg.Subject)

	full, err := mailpitClient.GetMessageByID(msg.ID)
	require.NoError(t, err)
	assert.Contains(t, full.HTML, "Harbour Medical Staffing")
	assert.NotContains(t, full.HTML, "Default Staffing")
}

func TestAgencyDigestEntryKeepsAgencyID(t *testing.T) {
	resetQueue(t)

	agency := createAgency(t, "Riverside Staffing")

	req := confirmationRequest("client-branded", "matron@example.com")
	req["agency_id"] = agency.ID

	resp := operatorClient().Post(t, "/api/v1/queue/shift-confirmations", req)
	testutil.RequireStatus(t, resp, http.StatusAccepted)

	var entry digest.QueueEntryResponse
	testutil.DecodeData(t, resp, &entry)
	assert.Equal(t, agency.ID, entry.AgencyID)
}
