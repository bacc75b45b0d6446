package vm

import (
	"math"
	"math/bits"
	"strconv"

	"github.com/chazu/tuuvm/bigint"
	"github.com/chazu/tuuvm/tuple"
)

// ---------------------------------------------------------------------------
// Integer Primitives
// ---------------------------------------------------------------------------

// Integer methods live on the abstract Integer type, so SmallInteger, the
// large integers and the fixed-width kinds share them. Results are always
// generic integers: a SmallInteger when the value fits, a large integer
// otherwise. A Float argument turns the operation into float arithmetic.

type integerOp struct {
	small func(a, b int64) (int64, bool)
	large func(a, b bigint.Int) bigint.Int
	float func(a, b float64) float64
}

func (ctx *Context) integerArithmetic(recv, arg tuple.Tuple, op integerOp) tuple.Tuple {
	if ctx.IsFloat(arg) {
		return ctx.EncodeFloat64(op.float(ctx.numberAsFloat(recv), ctx.numberAsFloat(arg)))
	}
	if a, ok := ctx.TryDecodeInt64(recv); ok {
		if b, ok := ctx.TryDecodeInt64(arg); ok {
			if r, ok := op.small(a, b); ok {
				return ctx.NewInteger(r)
			}
		}
	}
	return ctx.EncodeInteger(op.large(ctx.integerOperand(recv), ctx.integerOperand(arg)))
}

func (ctx *Context) integerOperand(v tuple.Tuple) bigint.Int {
	x, ok := ctx.IntegerValue(v)
	if !ok {
		ctx.SignalError(TypeCheckErrorType, ctx.PrintString(v)+" is not an integer")
	}
	return x
}

// numberAsFloat converts any number to a float64. Large integers go
// through their decimal form.
func (ctx *Context) numberAsFloat(v tuple.Tuple) float64 {
	if f, ok := ctx.TryDecodeFloat64(v); ok {
		return f
	}
	if x, ok := ctx.IntegerValue(v); ok {
		f, _ := strconv.ParseFloat(x.String(), 64)
		return f
	}
	ctx.SignalError(TypeCheckErrorType, ctx.PrintString(v)+" is not a number")
	return 0
}

// compareNumbers returns -1, 0 or +1. Mixed integer and float operands
// compare as floats.
func (ctx *Context) compareNumbers(a, b tuple.Tuple) int {
	if ctx.IsFloat(a) || ctx.IsFloat(b) {
		x, y := ctx.numberAsFloat(a), ctx.numberAsFloat(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	if x, ok := ctx.TryDecodeInt64(a); ok {
		if y, ok := ctx.TryDecodeInt64(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	return ctx.integerOperand(a).Cmp(ctx.integerOperand(b))
}

func addInt64(a, b int64) (int64, bool) {
	r := a + b
	return r, (a >= 0) != (b >= 0) || (r >= 0) == (a >= 0)
}

func subInt64(a, b int64) (int64, bool) {
	r := a - b
	return r, (a >= 0) == (b >= 0) || (r >= 0) == (a >= 0)
}

func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	hi, lo := bits.Mul64(absUint64(a), absUint64(b))
	if hi != 0 || lo > math.MaxInt64 {
		return 0, false
	}
	if (a < 0) != (b < 0) {
		return -int64(lo), true
	}
	return int64(lo), true
}

func absUint64(a int64) uint64 {
	if a < 0 {
		return uint64(-a)
	}
	return uint64(a)
}

// floorDivInt64 returns the floored quotient and modulo.
func floorDivInt64(a, b int64) (q, m int64, ok bool) {
	if a == math.MinInt64 && b == -1 {
		return 0, 0, false
	}
	q, m = a/b, a%b
	if m != 0 && (m < 0) != (b < 0) {
		q--
		m += b
	}
	return q, m, true
}

func (ctx *Context) checkDivisor(arg tuple.Tuple) {
	if ctx.IsFloat(arg) {
		return
	}
	if ctx.integerOperand(arg).IsZero() {
		ctx.SignalError(ZeroDivideType, "division by zero")
	}
}

func registerIntegerPrimitives() {
	arith := func(selector string, op integerOp) {
		defineMethod(IntegerType, selector, func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
			return ctx.integerArithmetic(args[0], args[1], op)
		})
	}

	// Arithmetic
	arith("+", integerOp{
		small: addInt64,
		large: bigint.Int.Add,
		float: func(a, b float64) float64 { return a + b },
	})
	arith("-", integerOp{
		small: subInt64,
		large: bigint.Int.Sub,
		float: func(a, b float64) float64 { return a - b },
	})
	arith("*", integerOp{
		small: mulInt64,
		large: bigint.Int.Mul,
		float: func(a, b float64) float64 { return a * b },
	})

	defineMethod(IntegerType, "//", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		ctx.checkDivisor(args[1])
		return ctx.integerArithmetic(args[0], args[1], integerOp{
			small: func(a, b int64) (int64, bool) {
				q, _, ok := floorDivInt64(a, b)
				return q, ok
			},
			large: func(a, b bigint.Int) bigint.Int {
				q, _, _ := a.DivMod(b)
				return q
			},
			float: func(a, b float64) float64 { return math.Floor(a / b) },
		})
	})

	defineMethod(IntegerType, "\\\\", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		ctx.checkDivisor(args[1])
		return ctx.integerArithmetic(args[0], args[1], integerOp{
			small: func(a, b int64) (int64, bool) {
				_, m, ok := floorDivInt64(a, b)
				return m, ok
			},
			large: func(a, b bigint.Int) bigint.Int {
				_, m, _ := a.DivMod(b)
				return m
			},
			float: func(a, b float64) float64 { return a - b*math.Floor(a/b) },
		})
	})

	defineMethod(IntegerType, "quo:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		ctx.checkDivisor(args[1])
		return ctx.integerArithmetic(args[0], args[1], integerOp{
			small: func(a, b int64) (int64, bool) {
				if a == math.MinInt64 && b == -1 {
					return 0, false
				}
				return a / b, true
			},
			large: func(a, b bigint.Int) bigint.Int {
				q, _, _ := a.QuoRem(b)
				return q
			},
			float: func(a, b float64) float64 { return math.Trunc(a / b) },
		})
	})

	defineMethod(IntegerType, "rem:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		ctx.checkDivisor(args[1])
		return ctx.integerArithmetic(args[0], args[1], integerOp{
			small: func(a, b int64) (int64, bool) {
				if b == -1 {
					return 0, true
				}
				return a % b, true
			},
			large: func(a, b bigint.Int) bigint.Int {
				_, r, _ := a.QuoRem(b)
				return r
			},
			float: math.Mod,
		})
	})

	// Exact division: an integer when the division is exact, a float
	// otherwise.
	defineMethod(IntegerType, "/", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		recv, arg := args[0], args[1]
		ctx.checkDivisor(arg)
		if ctx.IsFloat(arg) {
			return ctx.EncodeFloat64(ctx.numberAsFloat(recv) / ctx.numberAsFloat(arg))
		}
		q, r, _ := ctx.integerOperand(recv).QuoRem(ctx.integerOperand(arg))
		if r.IsZero() {
			return ctx.EncodeInteger(q)
		}
		return ctx.EncodeFloat64(ctx.numberAsFloat(recv) / ctx.numberAsFloat(arg))
	})

	defineMethod(IntegerType, "negated", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		if n, ok := ctx.TryDecodeInt64(args[0]); ok && n != math.MinInt64 {
			return ctx.NewInteger(-n)
		}
		return ctx.EncodeInteger(ctx.integerOperand(args[0]).Neg())
	})

	defineMethod(IntegerType, "abs", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.EncodeInteger(ctx.integerOperand(args[0]).Abs())
	})

	// Comparison
	compare := func(selector string, test func(c int) bool) {
		defineMethod(NumberType, selector, func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
			return tuple.FromBool(test(ctx.compareNumbers(args[0], args[1])))
		})
	}
	compare("<", func(c int) bool { return c < 0 })
	compare(">", func(c int) bool { return c > 0 })
	compare("<=", func(c int) bool { return c <= 0 })
	compare(">=", func(c int) bool { return c >= 0 })

	defineMethod(NumberType, "max:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		if ctx.compareNumbers(args[0], args[1]) >= 0 {
			return args[0]
		}
		return args[1]
	})

	defineMethod(NumberType, "min:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		if ctx.compareNumbers(args[0], args[1]) <= 0 {
			return args[0]
		}
		return args[1]
	})

	defineMethod(NumberType, "between:and:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return tuple.FromBool(ctx.compareNumbers(args[0], args[1]) >= 0 && ctx.compareNumbers(args[0], args[2]) <= 0)
	})

	defineMethod(NumberType, "asFloat", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.EncodeFloat64(ctx.numberAsFloat(args[0]))
	})

	// Testing
	defineMethod(IntegerType, "isZero", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return tuple.FromBool(ctx.integerOperand(args[0]).IsZero())
	})

	defineMethod(IntegerType, "even", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		_, m, _ := ctx.integerOperand(args[0]).DivMod(bigint.FromInt64(2))
		return tuple.FromBool(m.IsZero())
	})

	defineMethod(IntegerType, "odd", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		_, m, _ := ctx.integerOperand(args[0]).DivMod(bigint.FromInt64(2))
		return tuple.FromBool(!m.IsZero())
	})

	defineMethod(IntegerType, "sign", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return ctx.NewInteger(int64(ctx.integerOperand(args[0]).Sign()))
	})

	// Bit operations work on values that fit an int64.
	bitwise := func(selector string, f func(a, b int64) int64) {
		defineMethod(IntegerType, selector, func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
			a := ctx.intArg(args[0], "receiver")
			b := ctx.intArg(args[1], "argument")
			return ctx.NewInteger(f(a, b))
		})
	}
	bitwise("bitAnd:", func(a, b int64) int64 { return a & b })
	bitwise("bitOr:", func(a, b int64) int64 { return a | b })
	bitwise("bitXor:", func(a, b int64) int64 { return a ^ b })

	// Shifts are exact: left shifts grow into large integers and right
	// shifts floor.
	defineMethod(IntegerType, "bitShift:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		x := ctx.integerOperand(args[0])
		n := ctx.intArg(args[1], "shift")
		if n > 1<<16 || n < -(1<<16) {
			ctx.SignalError(ErrorType, "shift amount out of range")
		}
		p := bigint.FromInt64(1)
		two := bigint.FromInt64(2)
		for range absUint64(n) {
			p = p.Mul(two)
		}
		if n >= 0 {
			return ctx.EncodeInteger(x.Mul(p))
		}
		q, _, _ := x.DivMod(p)
		return ctx.EncodeInteger(q)
	})

	// Printing
	defineMethod(IntegerType, "printString:", func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		base := ctx.intArg(args[1], "base")
		if base < 2 || base > 36 {
			ctx.SignalError(ErrorType, "base must be between 2 and 36")
		}
		n, ok := ctx.TryDecodeInt64(args[0])
		if !ok {
			if base == 16 {
				return ctx.NewString(ctx.integerOperand(args[0]).Hex())
			}
			return ctx.NewString(ctx.integerOperand(args[0]).String())
		}
		return ctx.NewString(strconv.FormatInt(n, int(base)))
	})
}

// ---------------------------------------------------------------------------
// Float Primitives
// ---------------------------------------------------------------------------

func registerFloatPrimitives() {
	arith := func(selector string, f func(a, b float64) float64) {
		defineMethod(FloatType, selector, func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
			return ctx.EncodeFloat64(f(ctx.numberAsFloat(args[0]), ctx.numberAsFloat(args[1])))
		})
	}
	arith("+", func(a, b float64) float64 { return a + b })
	arith("-", func(a, b float64) float64 { return a - b })
	arith("*", func(a, b float64) float64 { return a * b })
	arith("/", func(a, b float64) float64 { return a / b })

	unary := func(selector string, f func(a float64) float64) {
		defineMethod(FloatType, selector, func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
			return ctx.EncodeFloat64(f(ctx.numberAsFloat(args[0])))
		})
	}
	unary("negated", func(a float64) float64 { return -a })
	unary("abs", math.Abs)
	unary("sqrt", math.Sqrt)

	toInteger := func(selector string, f func(a float64) float64) {
		defineMethod(FloatType, selector, func(ctx *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
			r := f(ctx.numberAsFloat(args[0]))
			if math.IsNaN(r) || math.IsInf(r, 0) {
				ctx.SignalError(CoercionErrorType, "cannot convert "+ctx.PrintString(args[0])+" to an integer")
			}
			if r >= -(1<<63) && r < 1<<63 {
				return ctx.NewInteger(int64(r))
			}
			x, err := bigint.Parse(strconv.FormatFloat(r, 'f', 0, 64))
			if err != nil {
				ctx.SignalError(CoercionErrorType, err.Error())
			}
			return ctx.EncodeInteger(x)
		})
	}
	toInteger("truncated", math.Trunc)
	toInteger("rounded", math.Round)
	toInteger("floor", math.Floor)
	toInteger("ceiling", math.Ceil)
}
