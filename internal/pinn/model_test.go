package pinn_test

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/gravnn/internal/config"
	"github.com/san-kum/gravnn/internal/constraints"
	"github.com/san-kum/gravnn/internal/dataset"
	"github.com/san-kum/gravnn/internal/gravity"
	"github.com/san-kum/gravnn/internal/pinn"
	"github.com/san-kum/gravnn/internal/transform"
	"gonum.org/v1/gonum/mat"
)

var quiet = pinn.WithLogger(slog.New(slog.DiscardHandler))

func pointMassData(seed uint64, n int) dataset.Data {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	return gravity.Generate(gravity.PointMass{Mu: 1}, gravity.SampleShell(rng, 1, 10, n))
}

func fittedSet(data dataset.Data) transform.Set {
	x, a, u := data.Matrices()
	set, err := transform.FitSet(transform.NonDim, x, a, u)
	Expect(err).NotTo(HaveOccurred())
	return set
}

func smallConfig(constraint string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Physics.Constraint = constraint
	cfg.Network.Hidden = []int{16}
	cfg.Training.LearningRate = 1e-2
	return cfg
}

func newModel(cfg *config.Config, set transform.Set) *pinn.Model {
	m, err := pinn.New(cfg, nil, set, quiet)
	Expect(err).NotTo(HaveOccurred())
	return m
}

// networkUnits returns the batch the model trains on.
func networkUnits(set transform.Set, data dataset.Data) (*mat.Dense, *mat.Dense) {
	x, a, _ := data.Matrices()
	xn, err := set.X.Transform(x)
	Expect(err).NotTo(HaveOccurred())
	an, err := set.A.Transform(a)
	Expect(err).NotTo(HaveOccurred())
	return xn, an
}

func relErr(got, want [3]float64) float64 {
	var d, n float64
	for j := 0; j < 3; j++ {
		d += (got[j] - want[j]) * (got[j] - want[j])
		n += want[j] * want[j]
	}
	return math.Sqrt(d / n)
}

var _ = Describe("Model", func() {
	var (
		data dataset.Data
		set  transform.Set
	)

	BeforeEach(func() {
		data = pointMassData(7, 100)
		set = fittedSet(data)
	})

	Describe("construction", func() {
		DescribeTable("rejects bad configuration before any step",
			func(edit func(*config.Config), key string) {
				cfg := smallConfig("pinn_a")
				edit(cfg)
				_, err := pinn.New(cfg, nil, set)
				Expect(err).To(MatchError(pinn.ErrConfiguration))
				var ce *pinn.ConfigurationError
				Expect(errors.As(err, &ce)).To(BeTrue())
				Expect(ce.Key).To(Equal(key))
			},
			Entry("unknown constraint", func(c *config.Config) { c.Physics.Constraint = "not_a_real_constraint" }, "constraint"),
			Entry("unknown loss", func(c *config.Config) { c.Physics.Loss = "not_a_loss" }, "loss"),
			Entry("unsupported dtype", func(c *config.Config) { c.Numerics.DType = "float16" }, "dtype"),
			Entry("beta out of range", func(c *config.Config) { c.Physics.Beta = 1.5 }, "beta"),
			Entry("zero learning rate", func(c *config.Config) { c.Training.LearningRate = 0 }, "learning_rate"),
			Entry("no hidden layers", func(c *config.Config) { c.Network.Hidden = nil }, "network"),
			Entry("unknown activation", func(c *config.Config) { c.Network.Activation = "bogus" }, "network"),
		)

		It("rejects a nil config", func() {
			_, err := pinn.New(nil, nil, set)
			Expect(err).To(MatchError(pinn.ErrConfiguration))
		})

		DescribeTable("selects the compiled path only for first-order graphs",
			func(constraint string, jit, want bool) {
				cfg := smallConfig(constraint)
				cfg.Numerics.JITCompile = jit
				Expect(newModel(cfg, set).Compiled()).To(Equal(want))
			},
			Entry("pinn_a", "pinn_a", true, true),
			Entry("pinn_a interpreted", "pinn_a", false, false),
			Entry("no_pinn", "no_pinn", true, true),
			Entry("pinn_a_ur", "pinn_a_ur", true, true),
			Entry("pinn_al", "pinn_al", true, false),
			Entry("pinn_alc", "pinn_alc", true, false),
		)

		It("sizes the output layer from the constraint", func() {
			Expect(newModel(smallConfig("no_pinn"), set).Network().OutputDim()).To(Equal(3))
			Expect(newModel(smallConfig("pinn_a"), set).Network().OutputDim()).To(Equal(1))
		})
	})

	Describe("transformers", func() {
		It("refuses inference before they are fitted", func() {
			m := newModel(smallConfig("pinn_a"), transform.Set{})
			_, err := m.Acceleration(data.X[:3], 0)
			Expect(err).To(MatchError(pinn.ErrUninitializedTransform))
			var ue *pinn.UninitializedTransformError
			Expect(errors.As(err, &ue)).To(BeTrue())
			Expect(ue.Name).To(Equal("x"))

			_, err = m.Evaluate(data, 0)
			Expect(err).To(MatchError(pinn.ErrUninitializedTransform))
		})

		It("fits them from the training data", func() {
			m := newModel(smallConfig("pinn_a"), transform.Set{})
			_, err := m.Fit(context.Background(), data, pinn.TrainOptions{Epochs: 1, BatchSize: 50})
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Transforms().Fitted()).To(BeTrue())
			_, err = m.Acceleration(data.X[:3], 0)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("steps", func() {
		It("gives the same metrics compiled and interpreted", func() {
			compiledCfg := smallConfig("pinn_a")
			interpCfg := smallConfig("pinn_a")
			interpCfg.Numerics.JITCompile = false
			compiled, interp := newModel(compiledCfg, set), newModel(interpCfg, set)
			Expect(compiled.Compiled()).To(BeTrue())
			Expect(interp.Compiled()).To(BeFalse())

			x, a := networkUnits(set, data)
			for step := 0; step < 3; step++ {
				mc, err := compiled.TrainStep(x, a)
				Expect(err).NotTo(HaveOccurred())
				mi, err := interp.TrainStep(x, a)
				Expect(err).NotTo(HaveOccurred())
				Expect(mc.Loss).To(BeNumerically("~", mi.Loss, 1e-10))
				Expect(mc.PercentMean).To(BeNumerically("~", mi.PercentMean, 1e-8))
			}
		})

		It("evaluates without touching the weights", func() {
			m := newModel(smallConfig("pinn_a"), set)
			before := m.Network().Clone()
			x, a := networkUnits(set, data)

			first, err := m.EvalStep(x, a)
			Expect(err).NotTo(HaveOccurred())
			second, err := m.EvalStep(x, a)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Loss).To(Equal(first.Loss))

			for i, p := range m.Network().Params() {
				Expect(mat.Equal(p, before.Params()[i])).To(BeTrue())
			}
			Expect(m.AdaptiveConstant()).To(Equal(1.0))
		})

		It("leaves weights without a gradient alone", func() {
			// The output bias shifts the potential but not its gradient.
			m := newModel(smallConfig("pinn_a"), set)
			params := m.Network().Params()
			bias := mat.DenseCopyOf(params[len(params)-1])
			weights := mat.DenseCopyOf(params[0])

			x, a := networkUnits(set, data)
			_, err := m.TrainStep(x, a)
			Expect(err).NotTo(HaveOccurred())
			Expect(mat.Equal(params[len(params)-1], bias)).To(BeTrue())
			Expect(mat.Equal(params[0], weights)).To(BeFalse())
		})

		It("reports divergence and keeps the last finite weights", func() {
			m := newModel(smallConfig("pinn_a"), set)
			before := m.Network().Clone()
			x, a := networkUnits(set, data)
			a.Set(0, 1, math.NaN())

			_, err := m.TrainStep(x, a)
			Expect(err).To(MatchError(pinn.ErrDivergence))
			var de *pinn.DivergenceError
			Expect(errors.As(err, &de)).To(BeTrue())
			Expect(de.Component).To(Equal(string(constraints.Acceleration)))
			for i, p := range m.Network().Params() {
				Expect(mat.Equal(p, before.Params()[i])).To(BeTrue())
			}
		})

		It("locates divergence during Fit", func() {
			m := newModel(smallConfig("pinn_a"), set)
			bad := data.Subset([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
			bad.A[9] = [3]float64{math.Inf(1), 0, 0}

			h, err := m.Fit(context.Background(), data.Append(bad), pinn.TrainOptions{Epochs: 3, BatchSize: 100})
			Expect(err).To(MatchError(pinn.ErrDivergence))
			var de *pinn.DivergenceError
			Expect(errors.As(err, &de)).To(BeTrue())
			Expect(de.Epoch).To(Equal(0))
			Expect(de.Step).To(Equal(1))
			Expect(h.Epochs).To(BeEmpty())
		})

		It("anneals the adaptive constant only when enabled", func() {
			x, a := networkUnits(set, data)

			held := newModel(smallConfig("pinn_al"), set)
			_, err := held.TrainStep(x, a)
			Expect(err).NotTo(HaveOccurred())
			Expect(held.AdaptiveConstant()).To(Equal(1.0))

			cfg := smallConfig("pinn_al")
			cfg.Physics.Anneal = true
			annealed := newModel(cfg, set)
			metrics, err := annealed.TrainStep(x, a)
			Expect(err).NotTo(HaveOccurred())
			Expect(annealed.AdaptiveConstant()).NotTo(Equal(1.0))
			Expect(annealed.AdaptiveConstant()).To(BeNumerically(">", 0))
			Expect(metrics.AdaptiveConstant).To(Equal(annealed.AdaptiveConstant()))
		})

		It("never moves the adaptive constant when beta is one", func() {
			x, a := networkUnits(set, data)
			cfg := smallConfig("pinn_alc")
			cfg.Physics.Anneal = true
			cfg.Physics.Beta = 1
			m := newModel(cfg, set)
			for range 4 {
				metrics, err := m.TrainStep(x, a)
				Expect(err).NotTo(HaveOccurred())
				Expect(metrics.AdaptiveConstant).To(Equal(cfg.Physics.AdaptiveConstant))
			}
			Expect(m.AdaptiveConstant()).To(Equal(cfg.Physics.AdaptiveConstant))
		})

		It("tracks the fresh gradient ratio when beta is zero", func() {
			x, a := networkUnits(set, data)
			cfg := smallConfig("pinn_alc")
			cfg.Physics.Anneal = true
			cfg.Physics.Beta = 0
			m := newModel(cfg, set)
			seen := map[float64]bool{}
			for range 4 {
				_, err := m.TrainStep(x, a)
				Expect(err).NotTo(HaveOccurred())
				Expect(m.AdaptiveConstant()).To(BeNumerically(">", 0))
				seen[m.AdaptiveConstant()] = true
			}
			Expect(len(seen)).To(BeNumerically(">", 1))
		})
	})

	Describe("training", func() {
		It("learns a point mass in ten steps", func() {
			m := newModel(smallConfig("pinn_a"), set)
			h, err := m.Fit(context.Background(), data, pinn.TrainOptions{Epochs: 10, BatchSize: 100})
			Expect(err).NotTo(HaveOccurred())

			losses := h.Losses()
			Expect(losses).To(HaveLen(10))
			Expect(losses[9]).To(BeNumerically("<", losses[0]))

			held := [3]float64{1.2, 0.9, 0}
			pred, err := m.Acceleration([][3]float64{held}, 0)
			Expect(err).NotTo(HaveOccurred())
			truth := gravity.PointMass{Mu: 1}.Acceleration(held)
			Expect(relErr(pred[0], truth)).To(BeNumerically("<", 0.5))
		})

		It("records validation metrics every epoch", func() {
			m := newModel(smallConfig("pinn_a"), set)
			h, err := m.Fit(context.Background(), data, pinn.TrainOptions{
				Epochs:     3,
				BatchSize:  32,
				Shuffle:    true,
				Seed:       3,
				Validation: pointMassData(8, 40),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(h.Epochs).To(HaveLen(3))
			for i, rec := range h.Epochs {
				Expect(rec.Epoch).To(Equal(i))
				Expect(rec.Validation).NotTo(BeNil())
				Expect(rec.Validation.Loss).To(BeNumerically(">", 0))
			}
		})

		It("continues the epoch count across calls", func() {
			m := newModel(smallConfig("pinn_a"), set)
			opts := pinn.TrainOptions{Epochs: 2, BatchSize: 50}
			_, err := m.Fit(context.Background(), data, opts)
			Expect(err).NotTo(HaveOccurred())
			h, err := m.Fit(context.Background(), data, opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(h.Epochs).To(HaveLen(4))
			last, ok := h.Last()
			Expect(ok).To(BeTrue())
			Expect(last.Epoch).To(Equal(3))
		})

		It("stops early when asked", func() {
			m := newModel(smallConfig("pinn_a"), set)
			h, err := m.Fit(context.Background(), data, pinn.TrainOptions{
				Epochs:    10,
				BatchSize: 50,
				OnEpochEnd: func(rec pinn.EpochRecord) error {
					if rec.Epoch == 1 {
						return pinn.ErrStopTraining
					}
					return nil
				},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(h.Epochs).To(HaveLen(2))
		})

		It("returns the context error when canceled", func() {
			m := newModel(smallConfig("pinn_a"), set)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			h, err := m.Fit(ctx, data, pinn.TrainOptions{Epochs: 5, BatchSize: 50})
			Expect(err).To(MatchError(context.Canceled))
			Expect(h.Epochs).To(BeEmpty())
		})

		It("lowers the loss with L-BFGS", func() {
			m := newModel(smallConfig("pinn_a"), set)
			_, err := m.Fit(context.Background(), data, pinn.TrainOptions{Epochs: 2, BatchSize: 100})
			Expect(err).NotTo(HaveOccurred())

			res, err := m.Optimize(context.Background(), data, 25)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Iterations).To(BeNumerically(">", 0))
			Expect(res.Loss).To(BeNumerically("<", res.Initial))

			after, err := m.Evaluate(data, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(after.Loss).To(BeNumerically("~", res.Loss, 1e-8))
		})
	})

	Describe("inference", func() {
		queries := [][3]float64{{2, 1, 0.5}, {-3, 0.5, 4}, {0.2, -1.4, 0.3}}

		It("has no potential without a potential network", func() {
			m := newModel(smallConfig("no_pinn"), set)
			_, err := m.Potential(queries)
			Expect(err).To(MatchError(pinn.ErrConfiguration))
			_, err = m.Fields(queries)
			Expect(err).To(MatchError(pinn.ErrConfiguration))
			a, err := m.Acceleration(queries, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(a).To(HaveLen(len(queries)))
		})

		It("splits large requests into batches", func() {
			m := newModel(smallConfig("pinn_a"), set)
			whole, err := m.Acceleration(data.X, 0)
			Expect(err).NotTo(HaveOccurred())
			batched, err := m.Acceleration(data.X, 7)
			Expect(err).NotTo(HaveOccurred())
			for i := range whole {
				for j := 0; j < 3; j++ {
					Expect(batched[i][j]).To(BeNumerically("~", whole[i][j], 1e-12))
				}
			}
		})

		DescribeTable("agrees between the single-pass and full paths",
			func(constraint string) {
				m := newModel(smallConfig(constraint), set)
				f, err := m.Fields(queries)
				Expect(err).NotTo(HaveOccurred())
				a, err := m.Acceleration(queries, 0)
				Expect(err).NotTo(HaveOccurred())
				u, err := m.Potential(queries)
				Expect(err).NotTo(HaveOccurred())

				for i := range queries {
					Expect(relErr(f.A[i], a[i])).To(BeNumerically("<", 1e-8))
					Expect(f.U[i]).To(BeNumerically("~", u[i], 1e-9*math.Max(1, math.Abs(u[i]))))
					for j := 0; j < 3; j++ {
						Expect(f.Curl[i][j]).To(BeNumerically("~", 0, 1e-9))
					}
				}
			},
			Entry("pinn_a", "pinn_a"),
			Entry("pinn_a_ur", "pinn_a_ur"),
			Entry("pinn_al", "pinn_al"),
		)

		It("returns the acceleration Jacobian in physical units", func() {
			m := newModel(smallConfig("pinn_a"), set)
			x := queries[0]
			jac, err := m.AccelerationJacobian([][3]float64{x})
			Expect(err).NotTo(HaveOccurred())

			const h = 1e-4
			for j := 0; j < 3; j++ {
				xp, xm := x, x
				xp[j] += h
				xm[j] -= h
				a, err := m.Acceleration([][3]float64{xp, xm}, 0)
				Expect(err).NotTo(HaveOccurred())
				for k := 0; k < 3; k++ {
					fd := (a[0][k] - a[1][k]) / (2 * h)
					Expect(jac[0][k][j]).To(BeNumerically("~", fd, 1e-6))
				}
			}
		})
	})
})
