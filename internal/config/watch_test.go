package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"go.uber.org/zap"
)

var _ = Describe("Watch", func() {
	var (
		tempDir    string
		configFile string
		ctx        context.Context
		cancel     context.CancelFunc
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "scf-config-watch-test")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
		gomega.Expect(os.WriteFile(configFile, []byte("log_level: info\n"), 0o644)).To(gomega.Succeed())

		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	})

	AfterEach(func() {
		cancel()
		os.RemoveAll(tempDir)
	})

	It("does nothing when path is empty", func() {
		err := Watch(ctx, "", zap.NewNop(), func(Config) { Fail("onReload should never fire for an empty path") })
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
	})

	It("invokes onReload with the freshly parsed config on a file write", func() {
		reloaded := make(chan Config, 1)
		err := Watch(ctx, configFile, zap.NewNop(), func(cfg Config) { reloaded <- cfg })
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		gomega.Expect(os.WriteFile(configFile, []byte("log_level: debug\n"), 0o644)).To(gomega.Succeed())

		gomega.Eventually(reloaded, 2*time.Second).Should(gomega.Receive(gomega.WithTransform(func(cfg Config) string {
			return cfg.LogLevel
		}, gomega.Equal("debug"))))
	})
})
