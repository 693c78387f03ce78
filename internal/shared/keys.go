package shared

// OrderSequenceKey is the redis counter backing order numbers.
const OrderSequenceKey = "orders:number:seq"
