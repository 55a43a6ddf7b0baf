package integration

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v1 "github.com/stacklok/connsync/internal/api/v1"
	"github.com/stacklok/connsync/internal/config"
	"github.com/stacklok/connsync/internal/ledger"
	"github.com/stacklok/connsync/internal/status"
	"github.com/stacklok/connsync/test-integration/connsync/helpers"
)

var _ = Describe("Connection scheduling", Label("sync"), func() {
	var (
		tempDir      string
		serverHelper *helpers.ServerTestHelper
	)

	startServer := func(scheduler *config.SchedulerConfig, connections ...config.ConnectionConfig) {
		configFile := helpers.WriteConfigYAML(tempDir, scheduler, connections...)
		serverHelper = helpers.NewServerTestHelper(ctx, configFile, helpers.FreePort())
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)
	}

	BeforeEach(func() {
		tempDir = createTempDir("connsync-test-")
	})

	AfterEach(func() {
		if serverHelper != nil {
			Expect(serverHelper.StopServer()).To(Succeed())
		}
		cleanupTempDir(tempDir)
	})

	Context("manual sync", func() {
		BeforeEach(func() {
			startServer(nil, helpers.FakerConnection("orders", map[string]any{"records": 50, "stateEvery": 10}))
		})

		It("runs a job and records its output", func() {
			Expect(serverHelper.Post("orders", "sync", nil)).To(Equal(http.StatusAccepted))

			job := serverHelper.WaitForLatestJob("orders", status.JobStatusSucceeded)
			Expect(job.ConfigType).To(Equal(status.ConfigTypeSync))
			Expect(job.Attempts).To(HaveLen(1))
			Expect(job.Attempts[0].Output).NotTo(BeNil())
			Expect(job.Attempts[0].Output.Summary.RecordsSynced).To(Equal(int64(50)))

			info := serverHelper.WaitForPhase("orders", status.PhaseWaiting)
			Expect(info.JobID).To(Equal(int64(-1)))
			Expect(info.AttemptNumber).To(Equal(-1))
		})

		It("rejects signals for unknown connections", func() {
			Expect(serverHelper.Post("missing", "sync", nil)).To(Equal(http.StatusNotFound))
			Expect(serverHelper.Post("orders", "cancel", nil)).To(Equal(http.StatusConflict))
		})
	})

	Context("cancel", func() {
		BeforeEach(func() {
			startServer(nil, helpers.FakerConnection("slow", map[string]any{
				"records":   1_000_000,
				"readDelay": "10ms",
			}))
		})

		It("cancels the running job", func() {
			Expect(serverHelper.Post("slow", "sync", nil)).To(Equal(http.StatusAccepted))
			serverHelper.WaitForPhase("slow", status.PhaseRunning)
			Expect(serverHelper.Post("slow", "sync", nil)).To(Equal(http.StatusConflict))

			Expect(serverHelper.Post("slow", "cancel", nil)).To(Equal(http.StatusAccepted))
			serverHelper.WaitForLatestJob("slow", status.JobStatusCancelled)
		})
	})

	Context("reset", func() {
		BeforeEach(func() {
			startServer(nil, helpers.FakerConnection("users", map[string]any{"records": 5}))
		})

		It("runs a reset job for the requested streams", func() {
			Expect(serverHelper.Post("users", "reset", v1.ResetRequest{
				Streams: []ledger.StreamDescriptor{{Name: "users"}},
			})).To(Equal(http.StatusAccepted))

			job := serverHelper.WaitForLatestJob("users", status.JobStatusSucceeded)
			Expect(job.ConfigType).To(Equal(status.ConfigTypeReset))
			Expect(job.ResetStreams).To(ConsistOf(ledger.StreamDescriptor{Name: "users"}))
		})
	})

	Context("auto-disable", func() {
		BeforeEach(func() {
			startServer(
				&config.SchedulerConfig{MaxFailedJobsInARowBeforeDisable: 2, SyncJobMaxAttempts: 1},
				helpers.FakerConnection("broken", map[string]any{"failAfter": 1, "failWithConfigError": true}),
			)
		})

		It("disables a connection that keeps failing", func() {
			for i := 0; i < 2; i++ {
				serverHelper.WaitForPhase("broken", status.PhaseWaiting)
				Expect(serverHelper.Post("broken", "sync", nil)).To(Equal(http.StatusAccepted))
				Eventually(func() (int, error) {
					jobs, err := serverHelper.ListJobs("broken")
					return len(jobs), err
				}, 10*time.Second, 50*time.Millisecond).Should(Equal(i + 1))
				serverHelper.WaitForLatestJob("broken", status.JobStatusFailed)
			}

			Eventually(func() (bool, error) {
				info, err := serverHelper.GetConnection("broken")
				return info.Active, err
			}, 10*time.Second, 50*time.Millisecond).Should(BeFalse())
			Expect(serverHelper.Post("broken", "sync", nil)).To(Equal(http.StatusConflict))
		})
	})

	Context("update and delete", func() {
		BeforeEach(func() {
			startServer(nil)
		})

		It("adds a connection at runtime and deletes it", func() {
			Expect(serverHelper.Put("added", `
name: Added at runtime
schedule:
  type: manual
source:
  type: faker
  config:
    records: 3
destination:
  type: devnull
`)).To(Equal(http.StatusAccepted))

			serverHelper.WaitForPhase("added", status.PhaseWaiting)
			Expect(serverHelper.Post("added", "sync", nil)).To(Equal(http.StatusAccepted))
			serverHelper.WaitForLatestJob("added", status.JobStatusSucceeded)

			Expect(serverHelper.Delete("added")).To(Equal(http.StatusAccepted))
			Eventually(func() int {
				return serverHelper.Post("added", "sync", nil)
			}, 10*time.Second, 50*time.Millisecond).Should(Equal(http.StatusGone))
		})
	})

	Context("restart", func() {
		It("keeps the job history in the SQLite ledger", func() {
			conn := helpers.FakerConnection("durable", map[string]any{"records": 7})
			startServer(nil, conn)

			Expect(serverHelper.Post("durable", "sync", nil)).To(Equal(http.StatusAccepted))
			first := serverHelper.WaitForLatestJob("durable", status.JobStatusSucceeded)
			Expect(serverHelper.StopServer()).To(Succeed())

			startServer(nil, conn)
			jobs, err := serverHelper.ListJobs("durable")
			Expect(err).NotTo(HaveOccurred())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].ID).To(Equal(first.ID))
			Expect(jobs[0].Status).To(Equal(status.JobStatusSucceeded))
		})
	})
})
