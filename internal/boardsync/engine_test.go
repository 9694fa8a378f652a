package boardsync_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"kanchat-cli/internal/api"
	"kanchat-cli/internal/boardsync"
	"kanchat-cli/internal/config"
	"kanchat-cli/internal/model"
	"kanchat-cli/internal/notify"
)

func seedColumns() []model.Column {
	return []model.Column{
		{ID: "13", Title: "Done", Position: 2},
		{ID: "11", Title: "To Do", Position: 0},
		{ID: "12", Title: "In Progress", Position: 1},
	}
}

func seedTasks() []model.Task {
	return []model.Task{
		{ID: "7", Title: "Write docs", Status: "todo", Tags: []string{}},
		{ID: "8", Title: "Ship it", Status: "in-progress", Tags: []string{"release"}},
		{ID: "9", Title: "Celebrate", Status: "done"},
	}
}

var _ = Describe("Engine", func() {
	var (
		ctx    context.Context
		remote *mockRemote
		relay  *notify.Relay
		engine *boardsync.Engine
		mode   config.StatusMode
		ids    int
	)

	BeforeEach(func() {
		ctx = context.Background()
		remote = &mockRemote{columns: seedColumns(), tasks: seedTasks()}
		relay = notify.NewRelay(notify.WithDedupWindow(0))
		mode = config.StatusModeEnum
		ids = 0
	})

	JustBeforeEach(func() {
		engine = boardsync.New(boardsync.Options{
			BoardID: "5",
			Remote:  remote,
			Mode:    mode,
			Notify:  relay,
			NewID: func() model.ID {
				ids++
				return model.ID(boardsync.PlaceholderPrefix + string(rune('a'+ids-1)))
			},
		})
		Expect(engine.Load(ctx)).To(Succeed())
	})

	Describe("Load", func() {
		It("orders columns and normalizes task status", func() {
			st := engine.State()
			Expect(st.Columns).To(HaveLen(3))
			Expect(st.Columns[0].ID).To(Equal(model.ID("11")))
			Expect(st.Columns[2].ID).To(Equal(model.ID("13")))

			t8, ok := st.Task("8")
			Expect(ok).To(BeTrue())
			Expect(t8.Status).To(Equal(model.StatusInProgress))
			Expect(t8.ColumnID).To(Equal(model.ID("12")))
			Expect(t8.BoardID).To(Equal(model.ID("5")))
		})
	})

	Describe("MoveTask", func() {
		Context("when the server accepts the move", func() {
			It("applies immediately and lets the server response win", func() {
				remote.updateTaskFn = func(_ context.Context, id model.ID, patch model.TaskPatch) (model.Task, error) {
					// Optimistic state is visible before the server answers.
					t, _ := engine.State().Task(id)
					Expect(t.Status).To(Equal(model.StatusDone))
					Expect(t.ColumnID).To(Equal(model.ID("13")))

					Expect(patch.Status).NotTo(BeNil())
					Expect(*patch.Status).To(Equal(model.StatusDone))
					Expect(patch.ColumnID).To(BeNil())
					return model.Task{ID: id, Title: "Write docs (final)", Status: "done"}, nil
				}

				t, err := engine.MoveTask(ctx, "7", "done")
				Expect(err).NotTo(HaveOccurred())
				Expect(t.Title).To(Equal("Write docs (final)"))
				Expect(t.ColumnID).To(Equal(model.ID("13")))

				Expect(relay.List()).To(HaveLen(1))
				Expect(relay.List()[0].Severity).To(Equal(notify.Success))
				Expect(relay.List()[0].Message).To(Equal("Task moved to Done"))
			})
		})

		Context("when the server fails", func() {
			It("restores task 7 to todo and raises an error notification", func() {
				before := engine.State()
				remote.updateTaskFn = func(context.Context, model.ID, model.TaskPatch) (model.Task, error) {
					return model.Task{}, errServer
				}

				_, err := engine.MoveTask(ctx, "7", "done")
				Expect(err).To(HaveOccurred())

				var merr *boardsync.MutationError
				Expect(errors.As(err, &merr)).To(BeTrue())
				Expect(merr.EntityID).To(Equal(model.ID("7")))
				var se *api.StatusError
				Expect(errors.As(err, &se)).To(BeTrue())

				t7, _ := engine.State().Task("7")
				Expect(t7.Status).To(Equal(model.StatusTodo))
				Expect(engine.State()).To(Equal(before))

				Expect(relay.List()).To(HaveLen(1))
				Expect(relay.List()[0].Severity).To(Equal(notify.Error))
			})
		})

		It("rejects unknown targets without touching state", func() {
			before := engine.State()
			_, err := engine.MoveTask(ctx, "7", "nowhere")
			Expect(err).To(HaveOccurred())
			Expect(engine.State()).To(Equal(before))
		})

		It("reports unknown tasks", func() {
			_, err := engine.MoveTask(ctx, "404", "done")
			Expect(err).To(MatchError(boardsync.NotFoundError{Kind: "task", ID: "404"}))
		})

		Context("on a column-mode board", func() {
			BeforeEach(func() {
				mode = config.StatusModeColumns
				remote.columns = append(seedColumns(), model.Column{ID: "14", Title: "Review", Position: 3})
			})

			It("moves by column title and sends only the column", func() {
				remote.updateTaskFn = func(_ context.Context, id model.ID, patch model.TaskPatch) (model.Task, error) {
					Expect(patch.Status).To(BeNil())
					Expect(*patch.ColumnID).To(Equal(model.ID("14")))
					return model.Task{}, nil
				}
				t, err := engine.MoveTask(ctx, "8", "review")
				Expect(err).NotTo(HaveOccurred())
				Expect(t.ColumnID).To(Equal(model.ID("14")))
				Expect(t.Status).To(BeEmpty())
			})
		})
	})

	Describe("CreateTask", func() {
		It("shows a placeholder and replaces it with the server's task", func() {
			remote.createTaskFn = func(_ context.Context, in model.TaskInput) (model.Task, error) {
				st := engine.State()
				Expect(st.Tasks).To(HaveLen(4))
				Expect(boardsync.IsPlaceholder(st.Tasks[3].ID)).To(BeTrue())
				Expect(in.Status).To(Equal(model.StatusTodo))
				return model.Task{ID: "99", Title: in.Title, Status: in.Status}, nil
			}

			t, err := engine.CreateTask(ctx, model.TaskInput{Title: "New card"})
			Expect(err).NotTo(HaveOccurred())
			Expect(t.ID).To(Equal(model.ID("99")))
			Expect(t.ColumnID).To(Equal(model.ID("11")))

			st := engine.State()
			Expect(st.Tasks).To(HaveLen(4))
			Expect(st.Tasks[3].ID).To(Equal(model.ID("99")))

			By("resolving the placeholder id in later mutations")
			remote.deleteTaskFn = func(_ context.Context, id model.ID) error {
				Expect(id).To(Equal(model.ID("99")))
				return nil
			}
			Expect(engine.DeleteTask(ctx, "tmp-a")).To(Succeed())
			Expect(engine.State().Tasks).To(HaveLen(3))
		})

		It("drops the placeholder when the server rejects it", func() {
			before := engine.State()
			remote.createTaskFn = func(context.Context, model.TaskInput) (model.Task, error) {
				return model.Task{}, errServer
			}
			_, err := engine.CreateTask(ctx, model.TaskInput{Title: "New card", Status: "done"})
			Expect(err).To(HaveOccurred())
			Expect(engine.State()).To(Equal(before))
		})
	})

	Describe("DeleteTask", func() {
		It("puts the task back in its original position on failure", func() {
			before := engine.State()
			remote.deleteTaskFn = func(context.Context, model.ID) error {
				Expect(engine.State().Tasks).To(HaveLen(2))
				return errServer
			}
			Expect(engine.DeleteTask(ctx, "8")).NotTo(Succeed())
			Expect(engine.State()).To(Equal(before))
		})
	})

	Describe("Columns", func() {
		It("creates a column at the end", func() {
			remote.createColumnFn = func(_ context.Context, in model.ColumnInput) (model.Column, error) {
				Expect(*in.Position).To(Equal(3))
				return model.Column{ID: "20", Title: in.Title, Position: *in.Position}, nil
			}
			c, err := engine.CreateColumn(ctx, "Blocked")
			Expect(err).NotTo(HaveOccurred())
			Expect(c.ID).To(Equal(model.ID("20")))
			Expect(engine.State().Columns[3].ID).To(Equal(model.ID("20")))
		})

		It("restores the column and its tasks when delete fails", func() {
			before := engine.State()
			remote.deleteColumnFn = func(context.Context, model.ID) error {
				t7, _ := engine.State().Task("7")
				Expect(t7.ColumnID).To(BeEmpty())
				return errServer
			}
			Expect(engine.DeleteColumn(ctx, "11")).NotTo(Succeed())
			Expect(engine.State()).To(Equal(before))
		})

		Context("on a column-mode board", func() {
			BeforeEach(func() {
				mode = config.StatusModeColumns
			})

			It("detaches the column's tasks and restores them exactly on failure", func() {
				before := engine.State()
				t8, _ := before.Task("8")
				Expect(t8.ColumnID).To(Equal(model.ID("12")))

				var during boardsync.State
				remote.deleteColumnFn = func(context.Context, model.ID) error {
					during = engine.State()
					return errServer
				}
				Expect(engine.DeleteColumn(ctx, "12")).NotTo(Succeed())
				Expect(engine.State()).To(Equal(before))

				Expect(during.Columns).To(HaveLen(2))
				Expect(during.Tasks).To(HaveLen(3))
				detached, ok := during.Task("8")
				Expect(ok).To(BeTrue())
				Expect(detached.ColumnID).To(BeEmpty())
				Expect(detached.Status).To(Equal(model.StatusInProgress))
			})

			It("keeps the detached tasks once the server confirms", func() {
				remote.deleteColumnFn = func(context.Context, model.ID) error { return nil }
				Expect(engine.DeleteColumn(ctx, "12")).To(Succeed())

				st := engine.State()
				Expect(st.Columns).To(HaveLen(2))
				Expect(st.Tasks).To(HaveLen(3))
				t8, _ := st.Task("8")
				Expect(t8.ColumnID).To(BeEmpty())
			})
		})

		It("renames a column optimistically", func() {
			remote.updateColumnFn = func(_ context.Context, id model.ID, in model.ColumnInput) (model.Column, error) {
				c, _ := engine.State().Column(id)
				Expect(c.Title).To(Equal("Backlog"))
				return model.Column{ID: id, Title: "Backlog", Position: 0}, nil
			}
			c, err := engine.UpdateColumn(ctx, "11", model.ColumnInput{Title: "Backlog"})
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Title).To(Equal("Backlog"))
		})
	})

	Describe("ordering", func() {
		It("resolves mutations on one task in issuance order", func() {
			entered := make(chan model.TaskPatch, 2)
			release := make(chan error)
			remote.updateTaskFn = func(_ context.Context, id model.ID, patch model.TaskPatch) (model.Task, error) {
				entered <- patch
				return model.Task{}, <-release
			}

			first := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				title := "first"
				_, err := engine.UpdateTask(ctx, "7", model.TaskPatch{Title: &title})
				first <- err
			}()
			Eventually(entered).Should(Receive())

			second := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				title := "second"
				_, err := engine.UpdateTask(ctx, "7", model.TaskPatch{Title: &title})
				second <- err
			}()

			// The second edit waits for the first to resolve.
			Consistently(func() string {
				t, _ := engine.State().Task("7")
				return t.Title
			}, 100*time.Millisecond).Should(Equal("first"))

			release <- errServer
			Eventually(first).Should(Receive(HaveOccurred()))

			var p model.TaskPatch
			Eventually(entered).Should(Receive(&p))
			Expect(*p.Title).To(Equal("second"))
			t, _ := engine.State().Task("7")
			Expect(t.Title).To(Equal("second"))

			release <- nil
			Eventually(second).Should(Receive(BeNil()))
		})

		It("follows a placeholder to the server id when the create resolves first", func() {
			created := make(chan struct{})
			remote.createTaskFn = func(_ context.Context, in model.TaskInput) (model.Task, error) {
				<-created
				return model.Task{ID: "99", Title: in.Title, Status: in.Status}, nil
			}
			var sent model.ID
			remote.updateTaskFn = func(_ context.Context, id model.ID, _ model.TaskPatch) (model.Task, error) {
				sent = id
				return model.Task{}, nil
			}

			createDone := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				_, err := engine.CreateTask(ctx, model.TaskInput{Title: "New card"})
				createDone <- err
			}()
			Eventually(func() bool {
				_, ok := engine.State().Task("tmp-a")
				return ok
			}).Should(BeTrue())

			moveDone := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				_, err := engine.MoveTask(ctx, "tmp-a", "done")
				moveDone <- err
			}()
			Consistently(moveDone, 100*time.Millisecond).ShouldNot(Receive())

			close(created)
			Eventually(createDone).Should(Receive(BeNil()))
			Eventually(moveDone).Should(Receive(BeNil()))
			Expect(sent).To(Equal(model.ID("99")))

			t, ok := engine.State().Task("99")
			Expect(ok).To(BeTrue())
			Expect(t.Status).To(Equal(model.StatusDone))
			_, ok = engine.State().Task("tmp-a")
			Expect(ok).To(BeFalse())
		})

		It("lets mutations on different tasks proceed independently", func() {
			block := make(chan struct{})
			remote.updateTaskFn = func(_ context.Context, id model.ID, _ model.TaskPatch) (model.Task, error) {
				if id == "7" {
					<-block
				}
				return model.Task{}, nil
			}
			done7 := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				_, err := engine.MoveTask(ctx, "7", "done")
				done7 <- err
			}()

			_, err := engine.MoveTask(ctx, "8", "done")
			Expect(err).NotTo(HaveOccurred())
			Consistently(done7, 50*time.Millisecond).ShouldNot(Receive())

			close(block)
			Eventually(done7).Should(Receive(BeNil()))
		})
	})

	Describe("Close", func() {
		It("discards results that arrive after teardown", func() {
			entered := make(chan struct{})
			release := make(chan struct{})
			remote.updateTaskFn = func(context.Context, model.ID, model.TaskPatch) (model.Task, error) {
				close(entered)
				<-release
				return model.Task{}, errServer
			}
			result := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				_, err := engine.MoveTask(ctx, "7", "done")
				result <- err
			}()
			Eventually(entered).Should(BeClosed())
			optimistic := engine.State()

			engine.Close()
			close(release)

			var err error
			Eventually(result).Should(Receive(&err))
			Expect(err).To(HaveOccurred())
			Expect(engine.State()).To(Equal(optimistic))
			Expect(relay.List()).To(BeEmpty())

			_, err = engine.MoveTask(ctx, "8", "done")
			Expect(err).To(MatchError(boardsync.ErrClosed))
		})
	})

	Describe("Subscribe", func() {
		It("signals state changes", func() {
			ch, stop := engine.Subscribe()
			defer stop()
			remote.updateTaskFn = func(context.Context, model.ID, model.TaskPatch) (model.Task, error) {
				return model.Task{}, nil
			}
			_, err := engine.MoveTask(ctx, "9", "todo")
			Expect(err).NotTo(HaveOccurred())
			Eventually(ch).Should(Receive())
		})
	})
})
