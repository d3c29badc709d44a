package capture

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		baseDir string
		storage *LocalStorage
	)

	BeforeEach(func() {
		baseDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(baseDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		It("writes the blob and returns its path", func() {
			path, err := storage.Save("profiles/supplier-a.jpg", []byte("preview"))
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal("profiles/supplier-a.jpg"))

			data, err := os.ReadFile(filepath.Join(baseDir, "profiles", "supplier-a.jpg"))
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("preview")))
		})

		It("creates nested directories", func() {
			_, err := storage.Save("queues/batch-1/page1.png", []byte("img"))
			Expect(err).NotTo(HaveOccurred())
			Expect(filepath.Join(baseDir, "queues", "batch-1")).To(BeADirectory())
		})

		It("overwrites an existing blob", func() {
			_, err := storage.Save("a.txt", []byte("one"))
			Expect(err).NotTo(HaveOccurred())
			_, err = storage.Save("a.txt", []byte("two"))
			Expect(err).NotTo(HaveOccurred())

			data, err := storage.Get("a.txt")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("two")))
		})
	})

	Describe("Get", func() {
		It("reads back a saved blob", func() {
			_, err := storage.Save("queues/batch-1/page1.png", []byte("img"))
			Expect(err).NotTo(HaveOccurred())

			data, err := storage.Get("queues/batch-1/page1.png")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("img")))
		})

		It("errors for a missing path", func() {
			_, err := storage.Get("missing.png")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Delete", func() {
		It("removes a saved blob", func() {
			_, err := storage.Save("a.txt", []byte("one"))
			Expect(err).NotTo(HaveOccurred())

			Expect(storage.Delete("a.txt")).To(Succeed())
			_, err = storage.Get("a.txt")
			Expect(err).To(HaveOccurred())
		})

		It("errors for a missing path", func() {
			Expect(storage.Delete("missing.png")).To(HaveOccurred())
		})
	})

	Describe("NewLocalStorage", func() {
		It("creates the base directory", func() {
			nested := filepath.Join(baseDir, "deeper", "store")
			_, err := NewLocalStorage(nested)
			Expect(err).NotTo(HaveOccurred())
			Expect(nested).To(BeADirectory())
		})
	})
})
